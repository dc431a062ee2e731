package marker

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Marker runs marking passes: one feedback request per essay, then one class summary
type Marker struct {
	generator Generator
	store     *FeedbackStore
	config    Config
	metrics   *MetricsRecorder
}

// NewMarker creates a Marker that sends prompts to generator and writes
// feedback to store
func NewMarker(generator Generator, store *FeedbackStore, cfg Config) *Marker {
	metrics := NewMetricsRecorder(cfg.EnableMetrics)
	if mg, ok := generator.(interface{ Metrics() *MetricsRecorder }); ok && mg.Metrics() != nil {
		metrics = mg.Metrics()
	}

	return &Marker{
		generator: generator,
		store:     store,
		config:    cfg,
		metrics:   metrics,
	}
}

// Store returns the feedback store results are written to
func (m *Marker) Store() *FeedbackStore {
	return m.store
}

// RunOption configures a single marking run
type RunOption func(*runOptions)

type runOptions struct {
	onProgress  func(Progress)
	onClass     func(summary string, err error)
	skipSummary bool
}

// WithProgress registers a callback invoked after every essay attempt
func WithProgress(fn func(Progress)) RunOption {
	return func(o *runOptions) {
		o.onProgress = fn
	}
}

// WithClassSummaryHook registers a callback invoked once the class summary
// step has been attempted
func WithClassSummaryHook(fn func(summary string, err error)) RunOption {
	return func(o *runOptions) {
		o.onClass = fn
	}
}

// WithoutClassSummary marks the essays only
func WithoutClassSummary() RunOption {
	return func(o *runOptions) {
		o.skipSummary = true
	}
}

// Run marks essays in order against rubric and guidance, then summarises the
// class. A failure on one essay is recorded in Run.Failures and never stops
// the remaining essays. A failed class summary is recorded in Run.ClassErr.
//
// Run returns a *PreconditionError without contacting the model when essays
// is empty, rubric is nil, guidance is blank or essay names are missing or
// repeated. When ctx is cancelled during the run the partial Run is returned
// together with ctx.Err() and the class summary is skipped.
func (m *Marker) Run(ctx context.Context, essays []Essay, rubric *Rubric, guidance string, opts ...RunOption) (*Run, error) {
	if err := checkPreconditions(essays, rubric, guidance); err != nil {
		return nil, err
	}

	o := &runOptions{}
	for _, opt := range opts {
		opt(o)
	}

	run := &Run{
		ID:         uuid.NewString(),
		RubricName: rubric.Name,
		EssayCount: len(essays),
		StartedAt:  time.Now(),
		Results:    make([]FeedbackResult, 0, len(essays)),
		Failures:   []EssayFailure{},
	}
	m.metrics.RecordRunSize(len(essays))
	m.metrics.RecordProgress(0)

	slog.Info("Starting marking run",
		"run_id", run.ID,
		"rubric", rubric.Name,
		"essays", len(essays))

	for i, essay := range essays {
		if err := ctx.Err(); err != nil {
			slog.Warn("Marking run cancelled",
				"run_id", run.ID,
				"completed", i,
				"total", len(essays))
			m.finish(run)
			return run, err
		}

		result, failure := m.markEssay(ctx, essay, rubric.Text, guidance)
		progress := Progress{Completed: i + 1, Total: len(essays), EssayName: essay.Name}

		if failure != nil {
			slog.Error("Failed to mark essay",
				"run_id", run.ID,
				"essay", essay.Name,
				"stage", failure.Stage,
				"error", failure.Err)
			m.metrics.RecordEssayFailed(failure.Stage)
			run.Failures = append(run.Failures, *failure)
			progress.Err = failure
		} else {
			m.metrics.RecordEssayMarked()
			run.Results = append(run.Results, *result)
		}

		m.metrics.RecordProgress(progress.Fraction())
		if o.onProgress != nil {
			o.onProgress(progress)
		}
	}

	if err := ctx.Err(); err != nil {
		slog.Warn("Marking run cancelled before class summary",
			"run_id", run.ID,
			"total", len(essays))
		m.finish(run)
		return run, err
	}

	if len(run.Results) > 0 && !o.skipSummary {
		m.summarize(ctx, run, rubric.Text, o)
	}

	m.finish(run)

	slog.Info("Marking run completed",
		"run_id", run.ID,
		"marked", len(run.Results),
		"failed", len(run.Failures),
		"class_summary", run.HasClassSummary(),
		"duration", run.Duration())

	return run, nil
}

func (m *Marker) finish(run *Run) {
	run.FinishedAt = time.Now()
	m.metrics.RecordRunDuration(run.Duration().Seconds())
}

func (m *Marker) summarize(ctx context.Context, run *Run, rubricText string, o *runOptions) {
	summary, path, err := m.summarizeClass(ctx, rubricText, run.Results)
	run.ClassSummary = summary
	run.ClassSummaryPath = path

	if err != nil {
		slog.Error("Failed to generate class summary",
			"run_id", run.ID,
			"error", err)
		run.ClassErr = err
		m.metrics.RecordClassSummary("error")
	} else {
		m.metrics.RecordClassSummary("success")
	}

	if o.onClass != nil {
		o.onClass(summary, err)
	}
}

// MarkEssay generates and stores feedback for a single essay
func (m *Marker) MarkEssay(ctx context.Context, essay Essay, rubricText, guidance string) (*FeedbackResult, error) {
	result, failure := m.markEssay(ctx, essay, rubricText, guidance)
	if failure != nil {
		return nil, failure.Err
	}
	return result, nil
}

func (m *Marker) markEssay(ctx context.Context, essay Essay, rubricText, guidance string) (*FeedbackResult, *EssayFailure) {
	slog.Info("Generating feedback for essay", "essay", essay.Name)

	prompt, err := BuildEssayPrompt(essay.Text, rubricText, guidance)
	if err != nil {
		return nil, &EssayFailure{EssayName: essay.Name, Stage: StagePrompt, Err: err}
	}

	feedback, err := m.generator.Generate(ctx, prompt, WithMaxTokens(m.config.essayMaxTokens()))
	if err != nil {
		return nil, &EssayFailure{EssayName: essay.Name, Stage: StageInference, Err: err}
	}

	return m.persistEssay(essay, feedback)
}

func (m *Marker) persistEssay(essay Essay, feedback string) (*FeedbackResult, *EssayFailure) {
	path, err := m.store.SaveFeedback(essay.Name, feedback)
	if err != nil {
		return nil, &EssayFailure{EssayName: essay.Name, Stage: StagePersistence, Err: err}
	}

	slog.Debug("Feedback saved",
		"essay", essay.Name,
		"path", path,
		"chars", len(feedback))

	return &FeedbackResult{
		EssayName:    essay.Name,
		FeedbackText: feedback,
		StoragePath:  path,
	}, nil
}

// MarkEssayStreaming generates feedback for one essay as a stream, passing
// every fragment to onFragment in arrival order, then stores the full text.
func (m *Marker) MarkEssayStreaming(ctx context.Context, essay Essay, rubricText, guidance string, onFragment func(string)) (*FeedbackResult, error) {
	prompt, err := BuildEssayPrompt(essay.Text, rubricText, guidance)
	if err != nil {
		return nil, err
	}

	stream, err := m.generator.GenerateStream(ctx, []Message{UserMessage(prompt)}, WithMaxTokens(m.config.essayMaxTokens()))
	if err != nil {
		return nil, err
	}

	feedback, err := CollectStream(stream, onFragment)
	if err != nil {
		return nil, fmt.Errorf("stream for essay %s: %w", essay.Name, err)
	}

	result, failure := m.persistEssay(essay, feedback)
	if failure != nil {
		return nil, failure.Err
	}
	return result, nil
}

// SummarizeClass generates and stores the class summary from results
func (m *Marker) SummarizeClass(ctx context.Context, rubricText string, results []FeedbackResult) (string, string, error) {
	return m.summarizeClass(ctx, rubricText, results)
}

// summarizeClass returns the summary text even when persisting it fails
func (m *Marker) summarizeClass(ctx context.Context, rubricText string, results []FeedbackResult) (string, string, error) {
	slog.Info("Generating class summary", "feedbacks", len(results))

	prompt, err := buildClassPrompt(rubricText, results, m.config.excerptLimit())
	if err != nil {
		return "", "", err
	}

	summary, err := m.generator.Generate(ctx, prompt, WithMaxTokens(m.config.classMaxTokens()))
	if err != nil {
		return "", "", err
	}

	path, err := m.store.SaveClassSummary(summary)
	if err != nil {
		return summary, "", err
	}

	return summary, path, nil
}

func checkPreconditions(essays []Essay, rubric *Rubric, guidance string) error {
	if len(essays) == 0 {
		return preconditionFailed("essays", ErrNoEssays)
	}
	if rubric == nil {
		return preconditionFailed("rubric", ErrNoRubric)
	}
	if strings.TrimSpace(guidance) == "" {
		return preconditionFailed("guidance", ErrNoGuidance)
	}

	seen := make(map[string]bool, len(essays))
	for i, essay := range essays {
		// Essays sharing a base name would overwrite each other's feedback file
		name := feedbackBaseName(essay.Name)
		if name == "" {
			return preconditionFailed("essays", fmt.Errorf("%w at index %d", ErrUnnamedEssay, i))
		}
		if seen[name] {
			return preconditionFailed("essays", fmt.Errorf("%w: %s", ErrDuplicateEssay, essay.Name))
		}
		seen[name] = true
	}

	return nil
}
