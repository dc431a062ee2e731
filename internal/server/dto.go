package server

import (
	"time"

	"github.com/JohnPlummer/essay-marker/marker"
)

// MarkEssayRequest asks for feedback on a single essay.
type MarkEssayRequest struct {
	EssayText        string `json:"essayText" validate:"required"`
	EssayName        string `json:"essayName" validate:"required"`
	RubricText       string `json:"rubricText" validate:"required"`
	FeedbackGuidance string `json:"feedbackGuidance" validate:"required"`
}

// MarkEssayResponse carries generated essay feedback.
type MarkEssayResponse struct {
	Feedback string `json:"feedback"`
	Path     string `json:"path"`
}

// FeedbackItem is one essay's feedback submitted for class analysis.
type FeedbackItem struct {
	Name     string `json:"name" validate:"required"`
	Feedback string `json:"feedback" validate:"required"`
}

// ClassFeedbackRequest asks for a class summary over existing feedback.
type ClassFeedbackRequest struct {
	AllFeedbacks []FeedbackItem `json:"allFeedbacks" validate:"required,min=1,dive"`
	RubricText   string         `json:"rubricText" validate:"required"`
}

// ClassFeedbackResponse carries the generated class summary.
type ClassFeedbackResponse struct {
	ClassFeedback string `json:"classFeedback"`
	Path          string `json:"path,omitempty"`
}

// DocumentInput is an essay or rubric supplied inline.
type DocumentInput struct {
	Name string `json:"name" validate:"required"`
	Text string `json:"text"`
}

// SessionLoadRequest loads session inputs inline. Without inline essays the
// server reads its configured input folders; clients cannot name paths.
type SessionLoadRequest struct {
	Essays         []DocumentInput `json:"essays" validate:"omitempty,dive"`
	Rubrics        []DocumentInput `json:"rubrics" validate:"omitempty,dive"`
	Guidance       string          `json:"guidance"`
	SelectedRubric string          `json:"selectedRubric"`
}

// SessionMarkRequest starts a batch run over the loaded session.
type SessionMarkRequest struct {
	Rubric           string `json:"rubric"`
	SkipClassSummary bool   `json:"skipClassSummary"`
}

// DocumentResponse is stored feedback returned for browsing.
type DocumentResponse struct {
	Name    string `json:"name"`
	Format  string `json:"format"`
	Content string `json:"content"`
}

// ResultResponse is one marked essay in a run.
type ResultResponse struct {
	EssayName   string `json:"essayName"`
	Feedback    string `json:"feedback"`
	StoragePath string `json:"storagePath"`
}

// FailureResponse is one essay that could not be marked.
type FailureResponse struct {
	EssayName string `json:"essayName"`
	Stage     string `json:"stage"`
	Error     string `json:"error"`
}

// RunResponse describes a finished batch run.
type RunResponse struct {
	ID               string            `json:"id"`
	RubricName       string            `json:"rubricName"`
	EssayCount       int               `json:"essayCount"`
	Results          []ResultResponse  `json:"results"`
	Failures         []FailureResponse `json:"failures"`
	ClassSummary     string            `json:"classSummary,omitempty"`
	ClassSummaryPath string            `json:"classSummaryPath,omitempty"`
	ClassError       string            `json:"classError,omitempty"`
	StartedAt        time.Time         `json:"startedAt"`
	FinishedAt       time.Time         `json:"finishedAt"`
	DurationMs       int64             `json:"durationMs"`
}

// HealthResponse is returned by the health endpoint.
type HealthResponse struct {
	Status    string                 `json:"status"`
	Version   string                 `json:"version"`
	Timestamp time.Time              `json:"timestamp"`
	Generator *GeneratorHealth       `json:"generator,omitempty"`
	Session   marker.SessionState    `json:"session"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// GeneratorHealth mirrors marker.HealthStatus for JSON.
type GeneratorHealth struct {
	Healthy bool                   `json:"healthy"`
	Status  string                 `json:"status"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func newRunResponse(run *marker.Run) RunResponse {
	resp := RunResponse{
		ID:               run.ID,
		RubricName:       run.RubricName,
		EssayCount:       run.EssayCount,
		Results:          make([]ResultResponse, 0, len(run.Results)),
		Failures:         make([]FailureResponse, 0, len(run.Failures)),
		ClassSummary:     run.ClassSummary,
		ClassSummaryPath: run.ClassSummaryPath,
		StartedAt:        run.StartedAt,
		FinishedAt:       run.FinishedAt,
		DurationMs:       run.Duration().Milliseconds(),
	}
	if run.ClassErr != nil {
		resp.ClassError = run.ClassErr.Error()
	}
	for _, result := range run.Results {
		resp.Results = append(resp.Results, ResultResponse{
			EssayName:   result.EssayName,
			Feedback:    result.FeedbackText,
			StoragePath: result.StoragePath,
		})
	}
	for _, failure := range run.Failures {
		resp.Failures = append(resp.Failures, FailureResponse{
			EssayName: failure.EssayName,
			Stage:     string(failure.Stage),
			Error:     failure.Err.Error(),
		})
	}
	return resp
}

func toEssays(inputs []DocumentInput) []marker.Essay {
	essays := make([]marker.Essay, 0, len(inputs))
	for _, in := range inputs {
		essays = append(essays, marker.Essay{Name: in.Name, Text: in.Text})
	}
	return essays
}

func toRubrics(inputs []DocumentInput) []marker.Rubric {
	rubrics := make([]marker.Rubric, 0, len(inputs))
	for _, in := range inputs {
		rubrics = append(rubrics, marker.Rubric{Name: in.Name, Text: in.Text})
	}
	return rubrics
}
