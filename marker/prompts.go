package marker

import (
	"embed"
	"fmt"
	"strings"
	"text/template"
	"unicode/utf8"
)

//go:embed prompts/*.tmpl
var promptFS embed.FS

// ExcerptMarker is appended to feedback excerpts that were cut short
const ExcerptMarker = "..."

var (
	essayPromptTemplate *template.Template
	classPromptTemplate *template.Template
	promptTemplateError error
)

func init() {
	// Load prompt templates during package initialization
	essayPromptTemplate, promptTemplateError = loadPromptTemplate("essay_feedback.tmpl")
	if promptTemplateError != nil {
		return
	}
	classPromptTemplate, promptTemplateError = loadPromptTemplate("class_feedback.tmpl")
}

func loadPromptTemplate(name string) (*template.Template, error) {
	raw, err := promptFS.ReadFile("prompts/" + name)
	if err != nil {
		return nil, fmt.Errorf("failed to load prompt %s: %w", name, err)
	}
	tmpl, err := template.New(name).Option("missingkey=error").Parse(string(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to parse prompt %s: %w", name, err)
	}
	return tmpl, nil
}

type essayPromptData struct {
	Essay    string
	Rubric   string
	Guidance string
}

type classPromptData struct {
	Rubric    string
	Feedbacks []feedbackExcerpt
}

type feedbackExcerpt struct {
	Name    string
	Excerpt string
}

// BuildEssayPrompt embeds the essay, rubric and guidance verbatim, each in its
// own tagged section, ahead of the marking instructions.
func BuildEssayPrompt(essayText, rubricText, guidanceText string) (string, error) {
	return renderPrompt(essayPromptTemplate, essayPromptData{
		Essay:    essayText,
		Rubric:   rubricText,
		Guidance: guidanceText,
	})
}

// BuildClassPrompt builds the class summary prompt from the rubric and an
// excerpt of every feedback result, each cut to DefaultExcerptLimit runes.
func BuildClassPrompt(rubricText string, results []FeedbackResult) (string, error) {
	return buildClassPrompt(rubricText, results, DefaultExcerptLimit)
}

func buildClassPrompt(rubricText string, results []FeedbackResult, limit int) (string, error) {
	if len(results) == 0 {
		return "", fmt.Errorf("class prompt: %w", ErrEmptyInput)
	}

	excerpts := make([]feedbackExcerpt, 0, len(results))
	for _, r := range results {
		excerpts = append(excerpts, feedbackExcerpt{
			Name:    r.EssayName,
			Excerpt: TruncateExcerpt(r.FeedbackText, limit),
		})
	}

	return renderPrompt(classPromptTemplate, classPromptData{
		Rubric:    rubricText,
		Feedbacks: excerpts,
	})
}

// TruncateExcerpt returns the first limit runes of text followed by
// ExcerptMarker. Text of limit runes or fewer is returned unchanged.
func TruncateExcerpt(text string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return text
	}

	var count int
	for i := range text {
		if count == limit {
			return text[:i] + ExcerptMarker
		}
		count++
	}
	return text
}

func renderPrompt(tmpl *template.Template, data interface{}) (string, error) {
	if promptTemplateError != nil {
		return "", promptTemplateError
	}

	var sb strings.Builder
	if err := tmpl.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("failed to render prompt %s: %w", tmpl.Name(), err)
	}
	return strings.TrimSuffix(sb.String(), "\n"), nil
}
