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

	"github.com/welfareschool/backend/core"
	"github.com/welfareschool/backend/core/live"
	"github.com/welfareschool/backend/services/identity"
)

type Options struct {
	DisableReqLogs bool
	Conf           *core.Config
	Logger         core.Logger
	Validate       *validator.Validate
	Translator     ut.Translator
	Services       live.Services
	Identity       *identity.Service
}

type Server struct {
	opts     *Options
	app      *echo.Echo
	hub      *Hub
	errors   chan error
	shutdown chan os.Signal
}

func NewServer(opts *Options) *Server {
	if opts.Logger == nil {
		opts.Logger = core.NopLogger{}
	}
	s := &Server{
		opts:     opts,
		app:      echo.New(),
		hub:      NewHub(),
		errors:   make(chan error, 1),
		shutdown: make(chan os.Signal, 1),
	}
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	s.setup()
	return s
}

func (s *Server) setup() {
	conf := s.opts.Conf

	s.app.HideBanner = true
	s.app.Pre(middleware.RemoveTrailingSlash())
	if !s.opts.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}
	if conf.Server.RequestTimeout > 0 {
		s.app.Use(timeoutMiddleware(conf.Server.RequestTimeout))
	}

	s.app.Binder = new(strictBinder)
	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.opts.Logger, s.opts.Translator, s.signalShutdown)
	s.app.Debug = conf.Debug

	s.app.GET("/", s.home)

	v1 := s.app.Group("/v1")
	auth := newAuthenticator(conf)
	jwt := middleware.JWTWithConfig(auth.jwtConfig())
	admin := adminMiddleware(s.opts.Services.Accounts, s.opts.Logger)
	deps := apiDeps{
		validate: s.opts.Validate,
		svcs:     s.opts.Services,
		logger:   s.opts.Logger,
		hub:      s.hub,
	}

	registerAuthAPI(v1, jwt, auth, s.opts.Identity, deps)
	registerStudentAPI(v1, jwt, deps)
	registerTransactionAPI(v1, jwt, deps)
	registerInvoiceAPI(v1, jwt, deps)
	registerAttendanceAPI(v1, jwt, deps)
	registerUserAPI(v1, jwt, admin, deps)
	registerDashboardAPI(v1, jwt, deps)
	registerLiveAPI(v1, auth, deps, conf)
}

// Start listens on the configured address. Listener errors are sent to Errors.
func (s *Server) Start() {
	if err := s.app.Start(s.opts.Conf.Server.Addr); err != nil && err != http.ErrServerClosed {
		s.errors <- err
	}
}

func (s *Server) Errors() <-chan error {
	return s.errors
}

func (s *Server) ShutdownSignal() <-chan os.Signal {
	return s.shutdown
}

func (s *Server) signalShutdown() {
	select {
	case s.shutdown <- syscall.SIGTERM:
	default:
	}
}

// Shutdown stops accepting requests and closes the live connections.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.CloseAll()
	return s.app.Shutdown(ctx)
}

func (s *Server) Close() error {
	s.hub.CloseAll()
	return s.app.Close()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func (s *Server) home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to "+s.opts.Conf.AppName+" API!")
}
