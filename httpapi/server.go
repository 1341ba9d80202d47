// Package httpapi is the thin fiber transport in front of the chat service.
package httpapi

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/Chative-Restaurant-Ordering/agent/contract"
	"github.com/tanpawarit/Chative-Restaurant-Ordering/chat"
	metricsx "github.com/tanpawarit/Chative-Restaurant-Ordering/pkg/metrics"
	"github.com/tanpawarit/Chative-Restaurant-Ordering/tenant/registry"
	storex "github.com/tanpawarit/Chative-Restaurant-Ordering/tenant/store"
)

type Config struct {
	Addr            string        `envconfig:"ADDR" default:":8080"`
	RequestTimeout  time.Duration `envconfig:"REQUEST_TIMEOUT" split_words:"true" default:"60s"`
	ReadTimeout     time.Duration `envconfig:"READ_TIMEOUT" split_words:"true" default:"15s"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" split_words:"true" default:"20s"`
	BodyLimit       int           `envconfig:"BODY_LIMIT" split_words:"true" default:"12582912"`
}

func (c Config) Validate() error {
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("%w: request timeout must be positive", contractx.ErrValidation)
	}
	if c.BodyLimit <= 0 {
		return fmt.Errorf("%w: body limit must be positive", contractx.ErrValidation)
	}
	return nil
}

// Service is what the routes call into; *chat.Service implements it.
type Service interface {
	StartSession(ctx context.Context, slug string) (chat.SessionStart, error)
	Chat(ctx context.Context, slug string, req chat.ChatRequest) (chat.ChatReply, error)
	Menu(ctx context.Context, slug, search string) ([]storex.MenuItem, error)
	Messages(ctx context.Context, slug, sessionID string, limit int) ([]storex.Message, error)
	UploadPaymentProof(ctx context.Context, slug string, data []byte) (string, error)
	Restaurants(ctx context.Context, q registry.ListQuery) (chat.RestaurantList, error)
}

var _ Service = (*chat.Service)(nil)

type Server struct {
	svc     Service
	cfg     Config
	metrics *metricsx.Metrics
	app     *fiber.App
}

// New builds the fiber app. gatherer backs /metrics; nil means the default
// prometheus registry.
func New(svc Service, cfg Config, m *metricsx.Metrics, gatherer prometheus.Gatherer) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	s := &Server{svc: svc, cfg: cfg, metrics: m}
	app := fiber.New(fiber.Config{
		AppName:               "restaurant-ordering",
		BodyLimit:             cfg.BodyLimit,
		ReadTimeout:           cfg.ReadTimeout,
		ErrorHandler:          errorHandler,
		DisableStartupMessage: true,
	})

	app.Use(recover.New(recover.Config{EnableStackTrace: true, StackTraceHandler: logPanic}))
	app.Use(requestid.New())
	app.Use(s.observe)
	app.Use(s.deadline)

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	app.Get("/restaurants", s.listRestaurants)

	tenant := app.Group("/tenant/:slug")
	tenant.Post("/session", s.startSession)
	tenant.Post("/chat", s.chat)
	tenant.Get("/menu", s.menu)
	tenant.Get("/session/:id/messages", s.messages)
	tenant.Post("/upload-payment-proof", s.uploadPaymentProof)

	s.app = app
	return s
}

func (s *Server) App() *fiber.App { return s.app }

func (s *Server) Listen() error {
	log.Info().Str("addr", s.cfg.Addr).Msg("http server listening")
	return s.app.Listen(s.cfg.Addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

// deadline bounds every request and puts a request scoped logger into the
// handler context.
func (s *Server) deadline(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), s.cfg.RequestTimeout)
	defer cancel()

	rid, _ := c.Locals(requestid.ConfigDefault.ContextKey).(string)
	logger := log.Logger.With().Str("request_id", rid).Logger()
	c.SetUserContext(logger.WithContext(ctx))
	return c.Next()
}

func (s *Server) observe(c *fiber.Ctx) error {
	started := time.Now()
	err := c.Next()

	status := c.Response().StatusCode()
	if err != nil {
		status = statusFor(err)
	}
	route := c.Route().Path
	s.metrics.ObserveHTTP(c.Method(), route, status, time.Since(started))
	return err
}

func logPanic(c *fiber.Ctx, e any) {
	log.Error().Str("path", c.Path()).Interface("panic", e).Msg("handler panicked")
}
