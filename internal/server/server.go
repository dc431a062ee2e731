package server

import (
	"context"
	"log/slog"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/spf13/afero"

	"github.com/JohnPlummer/essay-marker/internal/store"
	"github.com/JohnPlummer/essay-marker/marker"
)

// Inputs names the default locations session loading reads from.
type Inputs struct {
	EssaysDir    string
	RubricDir    string
	GuidanceFile string
}

// Dependencies groups what the HTTP server needs. Runs and Health are
// optional.
type Dependencies struct {
	Marker  *marker.Marker
	Session *marker.Session
	Runs    store.RunRepository
	Health  marker.HealthReporter
	FS      afero.Fs
	Inputs  Inputs
	Logger  *slog.Logger
}

// Server exposes marking over HTTP.
type Server struct {
	app      *fiber.App
	marker   *marker.Marker
	session  *marker.Session
	runs     store.RunRepository
	health   marker.HealthReporter
	fs       afero.Fs
	inputs   Inputs
	logger   *slog.Logger
	validate *validator.Validate
	renderer *Renderer
}

// New builds the fiber application and registers all routes.
func New(deps Dependencies) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	fsys := deps.FS
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	session := deps.Session
	if session == nil {
		session = marker.NewSession(deps.Marker)
	}

	s := &Server{
		marker:   deps.Marker,
		session:  session,
		runs:     deps.Runs,
		health:   deps.Health,
		fs:       fsys,
		inputs:   deps.Inputs,
		logger:   logger.With("component", "http"),
		validate: newValidator(),
		renderer: NewRenderer(),
	}

	s.app = fiber.New(fiber.Config{
		AppName:               "automark",
		DisableStartupMessage: true,
	})
	s.app.Use(requestID())
	s.app.Use(requestLogger(s.logger))
	s.routes()

	return s
}

func (s *Server) routes() {
	s.app.Get("/metrics", adaptor.HTTPHandler(marker.GetMetricsHandler()))

	api := s.app.Group("/api")
	api.Get("/health", s.healthCheck)
	api.Post("/mark-essay", s.markEssay)
	api.Post("/stream-essay", s.streamEssay)
	api.Post("/class-feedback", s.classFeedback)
	api.Get("/class-feedback", s.getClassFeedback)

	session := api.Group("/session")
	session.Get("", s.sessionState)
	session.Post("/load", s.sessionLoad)
	session.Post("/mark", s.sessionMark)

	api.Get("/runs", s.listRuns)
	api.Get("/runs/:id", s.getRun)

	api.Get("/feedback", s.listFeedback)
	api.Get("/feedback/:name", s.getFeedback)
}

// App returns the underlying fiber application.
func (s *Server) App() *fiber.App {
	return s.app
}

// Session returns the session the server marks with.
func (s *Server) Session() *marker.Session {
	return s.session
}

// Listen serves HTTP on addr until Shutdown is called.
func (s *Server) Listen(addr string) error {
	s.logger.Info("HTTP server listening", "addr", addr)
	return s.app.Listen(addr)
}

// Shutdown stops accepting requests and waits for in-flight ones until ctx
// is done.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func newValidator() *validator.Validate {
	validate := validator.New(validator.WithRequiredStructEnabled())
	validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return validate
}
