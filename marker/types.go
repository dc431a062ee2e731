package marker

import (
	"context"
	"errors"
	"time"
)

// Essay is one student's submitted text. Name is unique within a batch.
type Essay struct {
	Name string // Identifier, usually the source file name
	Text string // Raw essay content
}

// Rubric is a grading criteria document.
type Rubric struct {
	Name string // Identifier, usually the source file name
	Text string // Raw rubric content
}

// FeedbackResult is the generated critique for one essay
type FeedbackResult struct {
	EssayName    string // Name of the essay this feedback belongs to
	FeedbackText string // Text returned by the model
	StoragePath  string // Where the feedback was written
}

// FailureStage names the step of essay processing that failed.
type FailureStage string

const (
	StagePrompt      FailureStage = "prompt"
	StageInference   FailureStage = "inference"
	StagePersistence FailureStage = "persistence"
)

// EssayFailure records an essay that could not be marked.
type EssayFailure struct {
	EssayName string
	Stage     FailureStage
	Err       error
}

func (f EssayFailure) Error() string {
	return f.EssayName + " (" + string(f.Stage) + "): " + f.Err.Error()
}

func (f EssayFailure) Unwrap() error {
	return f.Err
}

// Run is the outcome of one batch marking pass.
type Run struct {
	ID               string
	RubricName       string
	EssayCount       int
	StartedAt        time.Time
	FinishedAt       time.Time
	Results          []FeedbackResult // Successful essays in processing order
	Failures         []EssayFailure   // Essays that were attempted but produced no result
	ClassSummary     string           // Empty when no summary was produced
	ClassSummaryPath string
	ClassErr         error // Set when the class summary step failed
}

// HasClassSummary reports whether the run produced a class summary.
func (r *Run) HasClassSummary() bool {
	return r.ClassSummary != ""
}

// Duration returns how long the run took.
func (r *Run) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Progress is reported after every essay attempt.
type Progress struct {
	Completed int    // Essays attempted so far
	Total     int    // Essays in the batch
	EssayName string // Essay that was just attempted
	Err       error  // Non-nil when that essay failed
}

// Fraction returns Completed/Total in the range [0, 1].
func (p Progress) Fraction() float64 {
	if p.Total == 0 {
		return 0
	}
	return float64(p.Completed) / float64(p.Total)
}

// Message is one chat turn sent to the model
type Message struct {
	Role    string         `json:"role"`
	Content []ContentBlock `json:"content"`
}

// ContentBlock is a typed piece of message content.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// Message roles
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// UserMessage wraps text in a single user turn.
func UserMessage(text string) Message {
	return Message{
		Role:    RoleUser,
		Content: []ContentBlock{{Type: "text", Text: text}},
	}
}

// Generator sends prompts to a text-generation model
type Generator interface {
	// Generate returns the completed text for a single prompt
	Generate(ctx context.Context, prompt string, opts ...GenerateOption) (string, error)

	// GenerateStream returns the completion as a sequence of text fragments
	GenerateStream(ctx context.Context, messages []Message, opts ...GenerateOption) (Stream, error)
}

// Stream is a finite, non-restartable sequence of text fragments.
// Recv returns io.EOF once the sequence is exhausted or the stream is closed.
type Stream interface {
	Recv() (string, error)
	Close() error
}

// HealthReporter is implemented by generators that can describe their health.
type HealthReporter interface {
	GetHealth() HealthStatus
}

// HealthStatus represents the health state of a generator
type HealthStatus struct {
	Healthy bool                   // Overall health status
	Status  string                 // Human-readable status message
	Details map[string]interface{} // Additional health details
}

// Provider names
const (
	ProviderBedrock = "bedrock"
	ProviderOpenAI  = "openai"
)

const (
	// Token budgets used by the orchestrator
	DefaultEssayMaxTokens = 3000
	DefaultClassMaxTokens = 4000

	// DefaultExcerptLimit caps each feedback excerpt in the class prompt
	DefaultExcerptLimit = 500

	// Output file naming
	FeedbackSuffix        = ".feedback.txt"
	ClassSummaryFileName  = "class_overall.feedback.md"
	DefaultOutputDir      = "outputs"
	DefaultRequestTimeout = 1000 * time.Second

	// Content length limits
	DefaultMaxContentLength = 200000 // Default maximum essay length in characters
	MinContentLength        = 1      // Minimum content length to be valid
)

// Error definitions
var (
	ErrMissingAPIKey     = errors.New("API key is required for the openai provider")
	ErrInvalidConfig     = errors.New("invalid configuration")
	ErrEmptyInput        = errors.New("input items cannot be empty")
	ErrNoEssays          = errors.New("no essays to mark")
	ErrNoRubric          = errors.New("no rubric selected")
	ErrNoGuidance        = errors.New("feedback guidance is empty")
	ErrDuplicateEssay    = errors.New("duplicate essay name")
	ErrUnnamedEssay      = errors.New("essay has no name")
	ErrUnknownRubric     = errors.New("unknown rubric")
	ErrRunInProgress     = errors.New("a marking run is already in progress")
	ErrStreamClosed      = errors.New("stream is closed")
	ErrContentTooLong    = errors.New("content exceeds maximum length")
	ErrContentTooShort   = errors.New("content is too short")
	ErrContentWhitespace = errors.New("content contains only whitespace")
)
