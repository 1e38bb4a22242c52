package api

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/vpaa/eventcore/internal/model"
	"github.com/vpaa/eventcore/internal/reconcile"
)

// Authority is what the HTTP surface serves. The SQLite store implements it.
type Authority interface {
	reconcile.Collaborator

	CreateEvent(ctx context.Context, e model.Event) (model.Event, error)
	GetEvent(ctx context.Context, id string) (model.Event, error)
	DeleteEvent(ctx context.Context, id string) error
	ImportRoster(ctx context.Context, eventID string, rows []model.JoinRequest) (model.RosterResult, error)
	CreateAccount(ctx context.Context, acct model.Account) (model.Account, error)
	GetAccount(ctx context.Context, id string) (model.Account, error)
	GetParticipant(ctx context.Context, id string) (model.Participant, error)
	VerifyCertificate(ctx context.Context, code string) (model.Verification, error)
	MarkCertificateEmailed(ctx context.Context, number string) (model.Certificate, error)
	EventReport(ctx context.Context, eventID string) (model.EventReport, error)
}

// Server is the Fiber application wrapping an Authority.
type Server struct {
	app       *fiber.App
	authority Authority
	validate  *validator.Validate
	logger    *slog.Logger
}

// New builds the HTTP surface. A nil logger means slog.Default().
func New(authority Authority, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		authority: authority,
		validate:  validator.New(),
		logger:    logger,
	}
	s.app = fiber.New(fiber.Config{
		AppName:               "eventcore",
		DisableStartupMessage: true,
		ErrorHandler:          s.handleError,
	})
	s.app.Use(recover.New())
	s.app.Use(s.logRequests)
	s.routes()
	return s
}

// App exposes the Fiber application, mainly for app.Test.
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen serves on addr until Shutdown.
func (s *Server) Listen(addr string) error {
	s.logger.Info("authority listening", "addr", addr)
	return s.app.Listen(addr)
}

// Shutdown stops accepting connections and waits for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func (s *Server) routes() {
	api := s.app.Group("/api")

	api.Get("/events", s.listEvents)
	api.Post("/events", s.createEvent)
	api.Get("/events/:id", s.getEvent)
	api.Delete("/events/:id", s.deleteEvent)
	api.Post("/events/:id/join", s.join)
	api.Post("/events/:id/roster", s.importRoster)

	api.Get("/participants/:id", s.getParticipant)
	api.Post("/participants/:id/mark_attendance", s.markAttendance)
	api.Post("/participants/:id/submit_evaluation", s.submitEvaluation)
	api.Post("/participants/:id/issue_certificate", s.issueCertificate)
	api.Post("/participants/:id/check_out", s.checkOut)

	api.Post("/scan/qr", s.scanQR)

	api.Post("/accounts", s.createAccount)
	api.Get("/accounts/:id", s.getAccount)

	api.Get("/certificates/verify/:code", s.verifyCertificate)
	api.Post("/certificates/:number/mark_emailed", s.markEmailed)

	api.Get("/reports/:event_id", s.eventReport)
}

func (s *Server) logRequests(c *fiber.Ctx) error {
	start := time.Now()
	err := c.Next()
	status := c.Response().StatusCode()
	if err != nil {
		status = statusFor(err)
	}
	s.logger.Debug("request",
		"method", c.Method(), "path", c.Path(), "status", status, "latency", time.Since(start))
	return err
}

// handleError renders every error as an ErrorBody.
func (s *Server) handleError(c *fiber.Ctx, err error) error {
	status := statusFor(err)
	code := string(model.CodeOf(err))
	message := err.Error()

	var me *model.Error
	if errors.As(err, &me) {
		message = me.Message
	}

	var fe *fiber.Error
	if errors.As(err, &fe) {
		message = fe.Message
		if code == "" && fe.Code < fiber.StatusInternalServerError {
			code = string(model.ErrCodeInvalidRequest)
			if fe.Code == fiber.StatusNotFound {
				code = string(model.ErrCodeNotFound)
			}
		}
	}
	if code == "" {
		code = "INTERNAL"
	}
	if status >= fiber.StatusInternalServerError {
		s.logger.Error("request failed", "method", c.Method(), "path", c.Path(), "error", err)
	}
	return c.Status(status).JSON(ErrorBody{Error: message, Code: code})
}

func statusFor(err error) int {
	switch model.CodeOf(err) {
	case model.ErrCodeMalformedToken, model.ErrCodeInvalidRequest:
		return fiber.StatusBadRequest
	case model.ErrCodeNotFound, model.ErrCodeParticipantNotFound:
		return fiber.StatusNotFound
	case model.ErrCodeInvalidTransition:
		return fiber.StatusConflict
	case model.ErrCodeNetworkFailure:
		return fiber.StatusServiceUnavailable
	}
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	return fiber.StatusInternalServerError
}

// bind parses and validates a JSON body.
func (s *Server) bind(c *fiber.Ctx, out any) error {
	if err := c.BodyParser(out); err != nil {
		return model.WrapError(model.ErrCodeInvalidRequest, "invalid request body", err)
	}
	if err := s.validate.Struct(out); err != nil {
		return model.WrapError(model.ErrCodeInvalidRequest, err.Error(), err)
	}
	return nil
}
