package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/JohnPlummer/essay-marker/internal/store"
	"github.com/JohnPlummer/essay-marker/marker"
)

var errInvalidBody = errors.New("invalid request body")

const (
	formatRaw  = "raw"
	formatHTML = "html"
)

func (s *Server) decode(c *fiber.Ctx, out interface{}) error {
	if err := c.BodyParser(out); err != nil {
		return errInvalidBody
	}
	if err := s.validate.Struct(out); err != nil {
		return describeValidation(err)
	}
	return nil
}

// describeValidation lists the offending fields by their JSON path.
func describeValidation(err error) error {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return err
	}

	missing := make([]string, 0, len(validationErrors))
	for _, fe := range validationErrors {
		field := fe.Namespace()
		if _, rest, ok := strings.Cut(field, "."); ok {
			field = rest
		}
		missing = append(missing, field)
	}
	return fmt.Errorf("missing required fields: %s", strings.Join(missing, ", "))
}

func (s *Server) healthCheck(c *fiber.Ctx) error {
	resp := HealthResponse{
		Status:    "ok",
		Version:   marker.GetVersion().Version,
		Timestamp: time.Now().UTC(),
		Session:   s.session.State(),
	}

	if s.health != nil {
		h := s.health.GetHealth()
		resp.Generator = &GeneratorHealth{Healthy: h.Healthy, Status: h.Status, Details: h.Details}
		if !h.Healthy {
			resp.Status = "degraded"
		}
	}

	return sendSuccess(c, "service healthy", resp)
}

func (s *Server) markEssay(c *fiber.Ctx) error {
	var req MarkEssayRequest
	if err := s.decode(c, &req); err != nil {
		return sendError(c, fiber.StatusBadRequest, err.Error())
	}

	essay := marker.Essay{Name: req.EssayName, Text: req.EssayText}
	result, err := s.marker.MarkEssay(c.UserContext(), essay, req.RubricText, req.FeedbackGuidance)
	if err != nil {
		if errors.Is(err, marker.ErrUnnamedEssay) {
			return sendError(c, fiber.StatusBadRequest, err.Error())
		}
		s.logger.Error("Error marking essay", "essay", req.EssayName, "error", err, "request_id", requestIDFrom(c))
		return sendError(c, fiber.StatusInternalServerError, "Failed to generate feedback")
	}

	return sendSuccess(c, "feedback generated", MarkEssayResponse{
		Feedback: result.FeedbackText,
		Path:     result.StoragePath,
	})
}

type streamFragment struct {
	Text string `json:"text"`
}

// streamEssay sends feedback as server-sent events: one "fragment" event per
// piece of text, then "done" with the stored result or "error".
func (s *Server) streamEssay(c *fiber.Ctx) error {
	var req MarkEssayRequest
	if err := s.decode(c, &req); err != nil {
		return sendError(c, fiber.StatusBadRequest, err.Error())
	}

	essay := marker.Essay{Name: req.EssayName, Text: req.EssayText}
	requestID := requestIDFrom(c)
	ctx, cancel := context.WithCancel(c.UserContext())

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer cancel()

		result, err := s.marker.MarkEssayStreaming(ctx, essay, req.RubricText, req.FeedbackGuidance, func(fragment string) {
			if werr := writeEvent(w, "fragment", streamFragment{Text: fragment}); werr != nil {
				s.logger.Debug("Client went away during stream", "error", werr, "request_id", requestID)
				cancel()
			}
		})
		if err != nil {
			s.logger.Error("Error streaming essay feedback", "essay", essay.Name, "error", err, "request_id", requestID)
			_ = writeEvent(w, "error", fiber.Map{"message": "Failed to generate feedback"})
			return
		}

		_ = writeEvent(w, "done", MarkEssayResponse{Feedback: result.FeedbackText, Path: result.StoragePath})
	})

	return nil
}

func writeEvent(w *bufio.Writer, event string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	return w.Flush()
}

func (s *Server) classFeedback(c *fiber.Ctx) error {
	var req ClassFeedbackRequest
	if err := s.decode(c, &req); err != nil {
		return sendError(c, fiber.StatusBadRequest, err.Error())
	}

	results := make([]marker.FeedbackResult, 0, len(req.AllFeedbacks))
	for _, item := range req.AllFeedbacks {
		results = append(results, marker.FeedbackResult{EssayName: item.Name, FeedbackText: item.Feedback})
	}

	summary, path, err := s.marker.SummarizeClass(c.UserContext(), req.RubricText, results)
	if err != nil && summary == "" {
		s.logger.Error("Error generating class feedback", "error", err, "request_id", requestIDFrom(c))
		return sendError(c, fiber.StatusInternalServerError, "Failed to generate class feedback")
	}
	if err != nil {
		s.logger.Warn("Class feedback generated but not saved", "error", err, "request_id", requestIDFrom(c))
	}

	return sendSuccess(c, "class feedback generated", ClassFeedbackResponse{ClassFeedback: summary, Path: path})
}

func (s *Server) getClassFeedback(c *fiber.Ctx) error {
	text, err := s.marker.Store().ReadClassSummary()
	if err != nil {
		return s.readError(c, err, "class feedback not found")
	}
	return s.sendDocument(c, "class_overall", text)
}

func (s *Server) listFeedback(c *fiber.Ctx) error {
	names, err := s.marker.Store().ListFeedback()
	if err != nil {
		s.logger.Error("Failed to list feedback", "error", err)
		return sendError(c, fiber.StatusInternalServerError, "failed to list feedback")
	}
	return sendSuccess(c, "feedback", names)
}

func (s *Server) getFeedback(c *fiber.Ctx) error {
	name := strings.TrimSpace(c.Params("name"))
	if name == "" {
		return sendError(c, fiber.StatusBadRequest, "feedback name required")
	}

	text, err := s.marker.Store().ReadFeedback(name)
	if err != nil {
		return s.readError(c, err, "feedback not found")
	}
	return s.sendDocument(c, name, text)
}

func (s *Server) readError(c *fiber.Ctx, err error, notFound string) error {
	if errors.Is(err, fs.ErrNotExist) {
		return sendError(c, fiber.StatusNotFound, notFound)
	}
	s.logger.Error("Failed to read stored feedback", "error", err)
	return sendError(c, fiber.StatusInternalServerError, "failed to read feedback")
}

func (s *Server) sendDocument(c *fiber.Ctx, name, text string) error {
	format := strings.ToLower(c.Query("format", formatRaw))
	switch format {
	case formatRaw:
	case formatHTML:
		html, err := s.renderer.HTML(text)
		if err != nil {
			s.logger.Error("Failed to render feedback", "name", name, "error", err)
			return sendError(c, fiber.StatusInternalServerError, "failed to render feedback")
		}
		text = html
	default:
		return sendError(c, fiber.StatusBadRequest, "format must be raw or html")
	}

	return sendSuccess(c, "feedback", DocumentResponse{Name: name, Format: format, Content: text})
}

func (s *Server) sessionState(c *fiber.Ctx) error {
	return sendSuccess(c, "session", s.session.State())
}

func (s *Server) sessionLoad(c *fiber.Ctx) error {
	var req SessionLoadRequest
	if len(c.Body()) > 0 {
		if err := s.decode(c, &req); err != nil {
			return sendError(c, fiber.StatusBadRequest, err.Error())
		}
	}

	if len(req.Essays) > 0 {
		s.session.Load(toEssays(req.Essays), toRubrics(req.Rubrics), req.Guidance)
	} else {
		err := s.session.LoadFolders(s.fs, s.inputs.EssaysDir, s.inputs.RubricDir, s.inputs.GuidanceFile)
		if err != nil {
			s.logger.Error("Failed to load session folders", "error", err)
			return sendError(c, fiber.StatusInternalServerError, "failed to load inputs")
		}
	}

	if req.SelectedRubric != "" {
		if err := s.session.SelectRubric(req.SelectedRubric); err != nil {
			return sendError(c, fiber.StatusBadRequest, err.Error())
		}
	}

	return sendSuccess(c, "session loaded", s.session.State())
}

func (s *Server) sessionMark(c *fiber.Ctx) error {
	var req SessionMarkRequest
	if len(c.Body()) > 0 {
		if err := s.decode(c, &req); err != nil {
			return sendError(c, fiber.StatusBadRequest, err.Error())
		}
	}

	if req.Rubric != "" {
		if err := s.session.SelectRubric(req.Rubric); err != nil {
			return sendError(c, fiber.StatusBadRequest, err.Error())
		}
	}

	var opts []marker.RunOption
	if req.SkipClassSummary {
		opts = append(opts, marker.WithoutClassSummary())
	}

	run, err := s.session.Mark(c.UserContext(), opts...)
	if run != nil {
		s.recordRun(c.UserContext(), run)
	}
	if err != nil {
		return s.runError(c, err)
	}

	return sendSuccess(c, "marking complete", newRunResponse(run))
}

func (s *Server) recordRun(ctx context.Context, run *marker.Run) {
	if s.runs == nil {
		return
	}
	if err := s.runs.Save(ctx, run); err != nil {
		s.logger.Error("Failed to record run", "run_id", run.ID, "error", err)
	}
}

func (s *Server) runError(c *fiber.Ctx, err error) error {
	var precondition *marker.PreconditionError
	switch {
	case errors.Is(err, marker.ErrRunInProgress):
		return sendError(c, fiber.StatusConflict, err.Error())
	case errors.As(err, &precondition), errors.Is(err, marker.ErrNoEssays):
		return sendError(c, fiber.StatusBadRequest, err.Error())
	default:
		s.logger.Error("Marking run failed", "error", err, "request_id", requestIDFrom(c))
		return sendError(c, fiber.StatusInternalServerError, "marking run failed")
	}
}

func (s *Server) listRuns(c *fiber.Ctx) error {
	if s.runs == nil {
		return sendError(c, fiber.StatusServiceUnavailable, "run history is disabled")
	}

	runs, err := s.runs.List(c.UserContext(), c.QueryInt("limit", 0))
	if err != nil {
		s.logger.Error("Failed to list runs", "error", err)
		return sendError(c, fiber.StatusInternalServerError, "failed to list runs")
	}
	return sendSuccess(c, "runs", runs)
}

func (s *Server) getRun(c *fiber.Ctx) error {
	if s.runs == nil {
		return sendError(c, fiber.StatusServiceUnavailable, "run history is disabled")
	}

	run, err := s.runs.Get(c.UserContext(), c.Params("id"))
	if errors.Is(err, store.ErrRunNotFound) {
		return sendError(c, fiber.StatusNotFound, "run not found")
	}
	if err != nil {
		s.logger.Error("Failed to load run", "run_id", c.Params("id"), "error", err)
		return sendError(c, fiber.StatusInternalServerError, "failed to load run")
	}
	return sendSuccess(c, "run", run)
}
