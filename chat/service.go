// Package chat runs the customer facing flows of one restaurant: sessions,
// chat turns, menu and transcript reads and payment proof uploads.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/tanpawarit/Chative-Restaurant-Ordering/agent/agents/orderagent"
	contractx "github.com/tanpawarit/Chative-Restaurant-Ordering/agent/contract"
	"github.com/tanpawarit/Chative-Restaurant-Ordering/agent/ratelimit"
	"github.com/tanpawarit/Chative-Restaurant-Ordering/pkg/media"
	metricsx "github.com/tanpawarit/Chative-Restaurant-Ordering/pkg/metrics"
	"github.com/tanpawarit/Chative-Restaurant-Ordering/tenant/registry"
	storex "github.com/tanpawarit/Chative-Restaurant-Ordering/tenant/store"
)

const (
	MaxContentRunes     = 4000
	DefaultMessageLimit = 50
	MaxMessageLimit     = 200
)

var (
	ErrEmptyContent     = fmt.Errorf("%w: message content is empty", contractx.ErrValidation)
	ErrContentTooLong   = fmt.Errorf("%w: message content exceeds %d characters", contractx.ErrValidation, MaxContentRunes)
	ErrInvalidSessionID = fmt.Errorf("%w: session id must be a UUID", contractx.ErrValidation)
	ErrSessionNotFound  = fmt.Errorf("%w: session not found", contractx.ErrNotFound)
	ErrRateLimited      = fmt.Errorf("%w: token budget for this session is used up, please try again later", contractx.ErrRateLimited)
)

type TenantResolver interface {
	Resolve(ctx context.Context, slug string) (*registry.Record, error)
	List(ctx context.Context, q registry.ListQuery) (registry.Page, error)
}

// StoreProvider hands out a tenant store together with the func that
// releases it.
type StoreProvider interface {
	GetOrCreate(ctx context.Context, locator string) (storex.Store, func(), error)
}

type Agent interface {
	Process(ctx context.Context, req orderagent.Request) (orderagent.Result, error)
}

type ModelSource interface {
	ForTenant(ctx context.Context, tenantKey string) (einomodel.ToolCallingChatModel, string, error)
}

type Limiter interface {
	Allow(ctx context.Context, ledger ratelimit.Ledger, sessionID uuid.UUID) (bool, error)
}

type Uploader interface {
	UploadImage(ctx context.Context, tenant string, data []byte) (string, error)
}

// MediaSource picks the uploader for a tenant's media config, which may be
// nil.
type MediaSource func(ctx context.Context, cfg *media.Config) (Uploader, error)

type Deps struct {
	Tenants TenantResolver
	Stores  StoreProvider
	Agent   Agent
	Models  ModelSource
	Limiter Limiter
	Media   MediaSource
	Metrics *metricsx.Metrics
}

type Service struct {
	tenants TenantResolver
	stores  StoreProvider
	agent   Agent
	models  ModelSource
	limiter Limiter
	media   MediaSource
	metrics *metricsx.Metrics
}

func New(d Deps) (*Service, error) {
	switch {
	case d.Tenants == nil:
		return nil, errors.New("tenant resolver is required")
	case d.Stores == nil:
		return nil, errors.New("store provider is required")
	case d.Agent == nil:
		return nil, errors.New("agent is required")
	case d.Models == nil:
		return nil, errors.New("model source is required")
	case d.Limiter == nil:
		return nil, errors.New("rate limiter is required")
	}
	return &Service{
		tenants: d.Tenants,
		stores:  d.Stores,
		agent:   d.Agent,
		models:  d.Models,
		limiter: d.Limiter,
		media:   d.Media,
		metrics: d.Metrics,
	}, nil
}

type SessionStart struct {
	SessionID  uuid.UUID        `json:"session_id"`
	Restaurant registry.Summary `json:"restaurant"`
	Welcome    string           `json:"welcome"`
}

type ChatRequest struct {
	Content   string `json:"content"`
	SessionID string `json:"session_id,omitempty"`
}

type ChatReply struct {
	Reply     string                 `json:"response"`
	SessionID uuid.UUID              `json:"session_id"`
	ToolCalls []contractx.ToolResult `json:"function_calls,omitempty"`
}

func Welcome(restaurant string) string {
	return fmt.Sprintf("Welcome to %s! I'm your AI assistant ready to help you order delicious food.", restaurant)
}

// tenant resolves slug and opens its store. The store stays usable until
// release is called.
func (s *Service) tenant(ctx context.Context, slug string) (*registry.Record, storex.Store, func(), error) {
	rec, err := s.tenants.Resolve(ctx, slug)
	if err != nil {
		return nil, nil, nil, err
	}
	store, release, err := s.stores.GetOrCreate(ctx, rec.StoreLocator)
	if err != nil {
		return nil, nil, nil, err
	}
	return rec, store, release, nil
}

func (s *Service) StartSession(ctx context.Context, slug string) (SessionStart, error) {
	rec, store, release, err := s.tenant(ctx, slug)
	if err != nil {
		return SessionStart{}, err
	}
	defer release()

	sess := &storex.Session{ID: uuid.New()}
	if err := store.CreateSession(ctx, sess); err != nil {
		return SessionStart{}, err
	}

	log.Ctx(ctx).Info().Str("tenant", rec.Slug).Str("session_id", sess.ID.String()).Msg("session started")
	return SessionStart{
		SessionID:  sess.ID,
		Restaurant: rec.Summary(),
		Welcome:    Welcome(rec.Name),
	}, nil
}

// Chat runs one customer turn. The customer message is committed before the
// agent runs and removed again if the turn fails; the reply and its token
// usage are committed together.
func (s *Service) Chat(ctx context.Context, slug string, req ChatRequest) (ChatReply, error) {
	content := strings.TrimSpace(req.Content)
	if content == "" {
		return ChatReply{}, ErrEmptyContent
	}
	if utf8.RuneCountInString(content) > MaxContentRunes {
		return ChatReply{}, ErrContentTooLong
	}

	rec, store, release, err := s.tenant(ctx, slug)
	if err != nil {
		return ChatReply{}, err
	}
	defer release()

	sessionID, err := s.ensureSession(ctx, store, req.SessionID)
	if err != nil {
		return ChatReply{}, err
	}
	logger := log.Ctx(ctx).With().Str("tenant", rec.Slug).Str("session_id", sessionID.String()).Logger()

	allowed, err := s.limiter.Allow(ctx, store, sessionID)
	if err != nil {
		return ChatReply{}, err
	}
	if !allowed {
		s.metrics.RateLimited()
		logger.Info().Msg("session over token budget")
		return ChatReply{}, ErrRateLimited
	}

	model, modelName, err := s.models.ForTenant(ctx, rec.AIAPIKey)
	if err != nil {
		return ChatReply{}, err
	}

	customer := &storex.Message{
		ID:        uuid.New(),
		SessionID: sessionID,
		Sender:    storex.SenderCustomer,
		Content:   content,
	}
	if err := store.InsertMessage(ctx, customer); err != nil {
		return ChatReply{}, err
	}

	res, err := s.agent.Process(ctx, orderagent.Request{
		Store:          store,
		Model:          model,
		ModelName:      modelName,
		RestaurantName: rec.Name,
		SessionID:      sessionID,
		Text:           content,
		MessageID:      customer.ID,
	})
	if err != nil {
		if delErr := store.DeleteMessage(context.WithoutCancel(ctx), customer.ID); delErr != nil {
			logger.Error().Err(delErr).Msg("remove customer message after failed turn")
		}
		logger.Error().Err(err).Msg("agent turn failed")
		return ChatReply{}, err
	}

	usage := &storex.TokenUsage{
		ID:        uuid.New(),
		SessionID: sessionID,
		Tokens:    res.Tokens,
		Model:     res.Model,
	}
	err = store.RunInTx(ctx, func(ctx context.Context, tx storex.Queries) error {
		if err := tx.InsertMessage(ctx, &storex.Message{
			ID:         uuid.New(),
			SessionID:  sessionID,
			Sender:     storex.SenderAgent,
			Content:    res.Reply,
			TokenCount: res.Tokens,
		}); err != nil {
			return err
		}
		return tx.InsertTokenUsage(ctx, usage)
	})
	if err != nil {
		// spent tokens count against the budget even when the turn is dropped
		cleanup := context.WithoutCancel(ctx)
		if delErr := store.DeleteMessage(cleanup, customer.ID); delErr != nil {
			logger.Error().Err(delErr).Msg("remove customer message after failed persist")
		}
		if usageErr := store.InsertTokenUsage(cleanup, usage); usageErr != nil {
			logger.Error().Err(usageErr).Int("tokens", res.Tokens).Msg("record token usage after failed persist")
		}
		logger.Error().Err(err).Msg("persist agent reply failed")
		return ChatReply{}, err
	}

	logger.Info().
		Int("tokens", res.Tokens).
		Int("tool_calls", len(res.ToolCalls)).
		Int("attempts", res.Attempts).
		Msg("chat turn completed")

	return ChatReply{
		Reply:     res.Reply,
		SessionID: sessionID,
		ToolCalls: res.ToolCalls,
	}, nil
}

// ensureSession returns the session named by raw, creating it with that id
// when it does not exist yet. An empty raw starts a new session.
func (s *Service) ensureSession(ctx context.Context, store storex.Store, raw string) (uuid.UUID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		sess := &storex.Session{ID: uuid.New()}
		if err := store.CreateSession(ctx, sess); err != nil {
			return uuid.Nil, err
		}
		return sess.ID, nil
	}

	id, err := uuid.Parse(raw)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, ErrInvalidSessionID
	}

	if _, err := store.GetSession(ctx, id); err == nil {
		return id, nil
	} else if !errors.Is(err, contractx.ErrNotFound) {
		return uuid.Nil, err
	}

	err = store.CreateSession(ctx, &storex.Session{ID: id})
	if err != nil && !errors.Is(err, contractx.ErrConflict) {
		return uuid.Nil, err
	}
	return id, nil
}

func (s *Service) Menu(ctx context.Context, slug, search string) ([]storex.MenuItem, error) {
	_, store, release, err := s.tenant(ctx, slug)
	if err != nil {
		return nil, err
	}
	defer release()
	search = strings.TrimSpace(search)
	if utf8.RuneCountInString(search) > 100 {
		return nil, fmt.Errorf("%w: search is too long", contractx.ErrValidation)
	}
	return store.ListMenuItems(ctx, search)
}

// Messages returns up to limit of the session's latest messages, oldest
// first.
func (s *Service) Messages(ctx context.Context, slug, sessionID string, limit int) ([]storex.Message, error) {
	id, err := uuid.Parse(strings.TrimSpace(sessionID))
	if err != nil {
		return nil, ErrInvalidSessionID
	}
	switch {
	case limit <= 0:
		limit = DefaultMessageLimit
	case limit > MaxMessageLimit:
		limit = MaxMessageLimit
	}

	_, store, release, err := s.tenant(ctx, slug)
	if err != nil {
		return nil, err
	}
	defer release()
	if _, err := store.GetSession(ctx, id); err != nil {
		if errors.Is(err, contractx.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return store.RecentMessages(ctx, id, limit, uuid.Nil)
}

// UploadPaymentProof stores an image for the tenant and returns its URL. The
// model attaches it to an order through submit_payment_proof.
func (s *Service) UploadPaymentProof(ctx context.Context, slug string, data []byte) (string, error) {
	if s.media == nil {
		return "", media.ErrDisabled
	}
	if _, _, err := media.DetectImage(data); err != nil {
		return "", err
	}

	rec, err := s.tenants.Resolve(ctx, slug)
	if err != nil {
		return "", err
	}
	up, err := s.media(ctx, rec.MediaConfig)
	if err != nil {
		return "", err
	}
	return up.UploadImage(ctx, rec.Slug, data)
}

type RestaurantList struct {
	Restaurants []registry.Summary `json:"restaurants"`
	Total       int                `json:"total"`
	Page        int                `json:"page"`
	Limit       int                `json:"limit"`
}

func (s *Service) Restaurants(ctx context.Context, q registry.ListQuery) (RestaurantList, error) {
	page, err := s.tenants.List(ctx, q)
	if err != nil {
		return RestaurantList{}, err
	}
	out := RestaurantList{
		Restaurants: make([]registry.Summary, 0, len(page.Records)),
		Total:       page.Total,
		Page:        page.Page,
		Limit:       page.Limit,
	}
	for _, r := range page.Records {
		out.Restaurants = append(out.Restaurants, r.Summary())
	}
	return out, nil
}
