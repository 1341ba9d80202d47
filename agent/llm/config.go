package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	einomodel "github.com/cloudwego/eino/components/model"
	lru "github.com/hashicorp/golang-lru/v2"

	contractx "github.com/tanpawarit/Chative-Restaurant-Ordering/agent/contract"
	openrouterx "github.com/tanpawarit/Chative-Restaurant-Ordering/pkg/openrouter"
)

type Config struct {
	BaseURL            string        `envconfig:"BASE_URL" split_words:"true" default:"https://openrouter.ai/api/v1"`
	APIKey             string        `envconfig:"API_KEY" split_words:"true" required:"true"`
	Model              string        `envconfig:"MODEL" split_words:"true" required:"true"`
	MaxCompletionToken int           `envconfig:"MAX_COMPLETION_TOKEN" split_words:"true" default:"1000"`
	Temperature        float32       `envconfig:"TEMPERATURE" split_words:"true" default:"0.3"`
	Timeout            time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"25s"`
	SiteURL            string        `envconfig:"SITE_URL" split_words:"true"`
	SiteName           string        `envconfig:"SITE_NAME" split_words:"true"`
	CacheSize          int           `envconfig:"CACHE_SIZE" split_words:"true" default:"256"`
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return fmt.Errorf("%w: openrouter api key is required", contractx.ErrValidation)
	}
	if strings.TrimSpace(c.Model) == "" {
		return fmt.Errorf("%w: default model is required", contractx.ErrValidation)
	}
	return nil
}

// OpenRouter builds the provider config, swapping in the tenant key when one
// is set.
func (c Config) OpenRouter(tenantKey string) openrouterx.Config {
	maxCompletionToken := c.MaxCompletionToken
	return openrouterx.Config{
		BaseURL:            strings.TrimSpace(c.BaseURL),
		APIKey:             strings.TrimSpace(c.APIKey),
		Model:              strings.TrimSpace(c.Model),
		MaxCompletionToken: &maxCompletionToken,
		Temperature:        c.Temperature,
		Timeout:            c.Timeout,
		SiteURL:            strings.TrimSpace(c.SiteURL),
		SiteName:           strings.TrimSpace(c.SiteName),
	}.WithAPIKey(tenantKey)
}

// Builder turns a provider config into a chat model. openrouterx.Config.New
// is the production builder.
type Builder func(ctx context.Context, cfg openrouterx.Config) (einomodel.ToolCallingChatModel, error)

func defaultBuilder(ctx context.Context, cfg openrouterx.Config) (einomodel.ToolCallingChatModel, error) {
	return cfg.New(ctx)
}

// Factory hands out one chat model per distinct API key.
type Factory struct {
	cfg    Config
	build  Builder
	models *lru.Cache[string, einomodel.ToolCallingChatModel]
}

func NewFactory(cfg Config, build Builder) (*Factory, error) {
	if build == nil {
		build = defaultBuilder
	}
	size := cfg.CacheSize
	if size <= 0 {
		size = 256
	}
	models, err := lru.New[string, einomodel.ToolCallingChatModel](size)
	if err != nil {
		return nil, fmt.Errorf("create model cache: %w", err)
	}
	return &Factory{cfg: cfg, build: build, models: models}, nil
}

// ForTenant returns the chat model for a tenant key (empty means the default
// key) and the model name used for usage accounting.
func (f *Factory) ForTenant(ctx context.Context, tenantKey string) (einomodel.ToolCallingChatModel, string, error) {
	conf := f.cfg.OpenRouter(tenantKey)
	if m, ok := f.models.Get(conf.APIKey); ok {
		return m, conf.Model, nil
	}

	m, err := f.build(ctx, conf)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", contractx.ErrModelInvoke, err)
	}
	f.models.Add(conf.APIKey, m)
	return m, conf.Model, nil
}
