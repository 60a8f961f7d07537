package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

	"github.com/caffeinepub/diploma-smart-study-hub/core"
	"github.com/caffeinepub/diploma-smart-study-hub/core/access"
	"github.com/caffeinepub/diploma-smart-study-hub/core/gallery"
	"github.com/caffeinepub/diploma-smart-study-hub/core/lesson"
	"github.com/caffeinepub/diploma-smart-study-hub/core/payment"
	"github.com/caffeinepub/diploma-smart-study-hub/core/profile"
	"github.com/caffeinepub/diploma-smart-study-hub/core/subscription"
	"github.com/caffeinepub/diploma-smart-study-hub/core/user"
	"github.com/caffeinepub/diploma-smart-study-hub/core/withdrawal"
	"github.com/caffeinepub/diploma-smart-study-hub/services/ratelimit"
)

type (
	// DecisionRecorder records the access decisions (metrics).
	DecisionRecorder interface {
		RecordDecision(granted bool)
	}

	ServerDeps struct {
		Conf       *core.Config
		Logger     core.Logger
		Validate   *validator.Validate
		Translator ut.Translator

		UserSvc         user.ServiceInterface
		ProfileSvc      profile.ServiceInterface
		SubscriptionSvc subscription.ServiceInterface
		PaymentSvc      payment.ServiceInterface
		WithdrawalSvc   withdrawal.ServiceInterface
		GallerySvc      gallery.ServiceInterface
		LessonSvc       lesson.ServiceInterface
		Access          *access.Checker

		Identity core.IdentityVerifier // optional external identity provider
		Limiter  ratelimit.Limiter     // optional
		Recorder DecisionRecorder      // optional
	}

	Server struct {
		deps     ServerDeps
		app      *echo.Echo
		auth     *authenticator
		errors   chan error
		shutdown chan os.Signal
	}
)

func NewServer(deps ServerDeps) *Server {
	s := &Server{
		deps:     deps,
		app:      echo.New(),
		errors:   make(chan error, 1),
		shutdown: make(chan os.Signal, 1),
	}
	s.auth = newAuthenticator(deps.Conf, deps.UserSvc, deps.Identity)
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	s.setup()
	return s
}

func (s *Server) setup() {
	conf := s.deps.Conf

	s.app.HideBanner = true
	s.app.Pre(middleware.RemoveTrailingSlash())
	if !conf.TestMode {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}
	s.app.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: conf.Server.CORSOrigins,
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.deps.Logger, s.deps.Translator, s.SignalShutdown)
	s.app.Debug = conf.Debug

	s.app.GET("/", home)

	v1 := s.app.Group("/v1", s.auth.identify)
	mw := middlewares{
		auth:    s.auth.requireUser,
		admin:   adminMiddleware,
		gated:   accessMiddleware(s.deps.Access, s.deps.Logger, s.deps.Recorder),
		limited: rateLimitMiddleware(s.deps.Limiter),
		jwt:     middleware.JWTWithConfig(s.auth.jwtConfig),
		decide: func(ctx echo.Context) access.Decision {
			return decide(ctx, s.deps.Access, s.deps.Logger, s.deps.Recorder)
		},
	}

	registerUserAPI(v1, mw, s.auth, s.deps.UserSvc, s.deps.Validate)
	registerProfileAPI(v1, mw, s.deps.ProfileSvc, s.deps.Validate)
	registerSubscriptionAPI(v1, mw, s.deps.Access, s.deps.SubscriptionSvc, s.deps.PaymentSvc)
	registerPaymentAPI(v1, mw, s.deps.PaymentSvc, s.deps.Validate)
	registerWithdrawalAPI(v1, mw, s.deps.WithdrawalSvc, s.deps.PaymentSvc, s.deps.Validate)
	registerGalleryAPI(v1, mw, s.deps.GallerySvc, s.deps.Validate)
	registerLessonAPI(v1, mw, s.deps.LessonSvc, s.deps.Validate)
}

func (s *Server) Start() {
	if err := s.app.Start(s.deps.Conf.Server.Address); err != nil && err != http.ErrServerClosed {
		s.errors <- err
	}
}

// Errors returns the errors that stopped the server.
func (s *Server) Errors() <-chan error {
	return s.errors
}

func (s *Server) ShutdownSignal() <-chan os.Signal {
	return s.shutdown
}

func (s *Server) SignalShutdown() {
	select {
	case s.shutdown <- syscall.SIGTERM:
	default: // already shutting down
	}
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

func (s *Server) Close() error {
	return s.app.Close()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to DiplomaHub API!")
}
