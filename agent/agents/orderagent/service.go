package orderagent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cloudwego/eino/compose"
	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	contractx "github.com/tanpawarit/Chative-Restaurant-Ordering/agent/contract"
	nodex "github.com/tanpawarit/Chative-Restaurant-Ordering/agent/nodes"
	"github.com/tanpawarit/Chative-Restaurant-Ordering/agent/prompt"
	"github.com/tanpawarit/Chative-Restaurant-Ordering/agent/tool"
	metricsx "github.com/tanpawarit/Chative-Restaurant-Ordering/pkg/metrics"
	storex "github.com/tanpawarit/Chative-Restaurant-Ordering/tenant/store"
)

var (
	ErrInvalidMessage = nodex.ErrInvalidMessage
	ErrInvalidSession = nodex.ErrInvalidSession
)

var tracer = otel.Tracer("restaurant-ordering/agent/orderagent")

// Request is one customer turn against one tenant.
type Request struct {
	Store          storex.Store
	Model          einomodel.ToolCallingChatModel
	ModelName      string
	RestaurantName string
	SessionID      uuid.UUID
	Text           string
	// MessageID is the already persisted customer message, left out of the
	// history so it is not sent twice.
	MessageID uuid.UUID
}

type Result struct {
	Reply     string
	ToolCalls []contractx.ToolResult
	Tokens    int
	Estimated bool
	Model     string
	Attempts  int
}

type Agent struct {
	cfg     Config
	metrics *metricsx.Metrics
	now     func() time.Time

	graphRunner compose.Runnable[nodex.GraphInput, nodex.GraphOutput]
}

type Option func(*Agent)

func WithClock(now func() time.Time) Option {
	return func(a *Agent) {
		if now != nil {
			a.now = now
		}
	}
}

func WithMetrics(m *metricsx.Metrics) Option {
	return func(a *Agent) {
		a.metrics = m
	}
}

func New(cfg Config, opts ...Option) (*Agent, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &Agent{
		cfg: cfg,
		now: time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}

	graphRunner, err := a.compileTurnGraph(context.Background())
	if err != nil {
		return nil, err
	}
	a.graphRunner = graphRunner

	return a, nil
}

// Process answers one customer message. Failed attempts are retried with a
// fixed backoff; tool side effects of an earlier attempt are replayed, not
// repeated.
func (a *Agent) Process(ctx context.Context, req Request) (Result, error) {
	ctx, span := tracer.Start(ctx, "orderagent.process")
	defer span.End()
	span.SetAttributes(
		attribute.String("session.id", req.SessionID.String()),
		attribute.String("llm.model", req.ModelName),
	)

	logger := log.Ctx(ctx).With().
		Str("session_id", req.SessionID.String()).
		Str("model", req.ModelName).
		Logger()

	if req.Store == nil || req.Model == nil {
		return Result{}, fmt.Errorf("%w: store and model are required", contractx.ErrValidation)
	}

	system, err := prompt.System(ctx, req.RestaurantName)
	if err != nil {
		return Result{}, err
	}

	bound, err := req.Model.WithTools(tool.Infos())
	if err != nil {
		return Result{}, fmt.Errorf("%w: bind tools: %v", contractx.ErrModelInvoke, err)
	}

	// One toolset per turn so its memo spans every attempt.
	tools := tool.NewToolset(req.Store, req.SessionID, tool.WithClock(a.now), tool.WithMetrics(a.metrics))
	in := nodex.GraphInput{
		SessionID:        req.SessionID,
		Text:             req.Text,
		ExcludeMessageID: req.MessageID,
		System:           system,
		History:          req.Store,
		Model:            bound,
		Tools:            tools,
	}

	var lastErr error
	for attempt := 1; attempt <= a.cfg.MaxAttempts; attempt++ {
		out, err := a.graphRunner.Invoke(ctx, in)
		if err == nil {
			outcome := "ok"
			if out.Reply == nodex.FallbackReply {
				outcome = "fallback"
			}
			a.metrics.AgentTurn(outcome, attempt)
			a.metrics.Tokens(out.Tokens)
			span.SetAttributes(
				attribute.Int("agent.attempts", attempt),
				attribute.Int("agent.tokens", out.Tokens),
				attribute.Int("agent.tool_calls", len(out.ToolCalls)),
			)
			logger.Debug().
				Int("attempt", attempt).
				Int("tool_calls", len(out.ToolCalls)).
				Int("tokens", out.Tokens).
				Bool("estimated", out.Estimated).
				Msg("turn completed")

			return Result{
				Reply:     out.Reply,
				ToolCalls: out.ToolCalls,
				Tokens:    out.Tokens,
				Estimated: out.Estimated,
				Model:     req.ModelName,
				Attempts:  attempt,
			}, nil
		}

		lastErr = err
		if errors.Is(err, contractx.ErrValidation) {
			a.metrics.AgentTurn("invalid", attempt)
			span.SetStatus(codes.Error, "invalid request")
			return Result{}, err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			a.metrics.AgentTurn("error", attempt)
			span.RecordError(err)
			return Result{}, fmt.Errorf("%w: %w", ctxErr, err)
		}

		logger.Warn().Err(err).Int("attempt", attempt).Int("max_attempts", a.cfg.MaxAttempts).Msg("turn attempt failed")
		if attempt == a.cfg.MaxAttempts {
			break
		}
		if err := sleep(ctx, a.cfg.RetryBackoff); err != nil {
			a.metrics.AgentTurn("error", attempt)
			return Result{}, fmt.Errorf("%w: %w", err, lastErr)
		}
	}

	a.metrics.AgentTurn("exhausted", a.cfg.MaxAttempts)
	span.RecordError(lastErr)
	span.SetStatus(codes.Error, "retries exhausted")
	return Result{}, fmt.Errorf("%w after %d attempts: %w", contractx.ErrRetriesExhausted, a.cfg.MaxAttempts, lastErr)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
