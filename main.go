package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/tanpawarit/Chative-Restaurant-Ordering/agent/agents/orderagent"
	"github.com/tanpawarit/Chative-Restaurant-Ordering/agent/llm"
	"github.com/tanpawarit/Chative-Restaurant-Ordering/agent/ratelimit"
	"github.com/tanpawarit/Chative-Restaurant-Ordering/chat"
	"github.com/tanpawarit/Chative-Restaurant-Ordering/httpapi"
	configx "github.com/tanpawarit/Chative-Restaurant-Ordering/pkg/config"
	databasex "github.com/tanpawarit/Chative-Restaurant-Ordering/pkg/database"
	logx "github.com/tanpawarit/Chative-Restaurant-Ordering/pkg/logger"
	_ "github.com/tanpawarit/Chative-Restaurant-Ordering/pkg/logger/autoload"
	"github.com/tanpawarit/Chative-Restaurant-Ordering/pkg/media"
	metricsx "github.com/tanpawarit/Chative-Restaurant-Ordering/pkg/metrics"
	openrouterx "github.com/tanpawarit/Chative-Restaurant-Ordering/pkg/openrouter"
	"github.com/tanpawarit/Chative-Restaurant-Ordering/tenant/registry"
	storex "github.com/tanpawarit/Chative-Restaurant-Ordering/tenant/store"
	"github.com/tanpawarit/Chative-Restaurant-Ordering/tenant/storecache"
)

type CatalogConfig struct {
	DSN string `envconfig:"DSN" required:"true"`
	databasex.Config
}

type TenantConfig struct {
	CacheSize   int           `split_words:"true" default:"256"`
	OpenTimeout time.Duration `split_words:"true" default:"30s"`
	databasex.Config
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatal().Err(err).Msg("service stopped")
	}
}

func run(ctx context.Context) error {
	appCfg := configx.MustNew[httpapi.Config]("APP")
	catalogCfg := configx.MustNew[CatalogConfig]("CATALOG_DB")
	tenantCfg := configx.MustNew[TenantConfig]("TENANT_DB")
	llmCfg := configx.MustNew[llm.Config]("LLM")
	agentCfg := configx.MustNew[orderagent.Config]("AGENT")
	limitCfg := configx.MustNew[ratelimit.Config]("RATE_LIMIT")
	mediaCfg := configx.MustNew[media.Config]("MEDIA")

	if err := agentCfg.FitsWithin(appCfg.RequestTimeout); err != nil {
		return err
	}

	metrics := metricsx.New("restaurant_ordering", prometheus.DefaultRegisterer)

	catalogDB, err := databasex.Open(ctx, catalogCfg.Config, catalogCfg.DSN)
	if err != nil {
		return fmt.Errorf("open catalog %s: %w", logx.MaskDSN(catalogCfg.DSN), err)
	}
	defer catalogDB.Close()

	catalog := registry.NewBunCatalog(catalogDB)
	if err := catalog.EnsureSchema(ctx); err != nil {
		return err
	}
	tenants := registry.New(catalog)

	stores, err := storecache.New(
		func(ctx context.Context, locator string) (storex.Store, error) {
			s, err := storex.Open(ctx, tenantCfg.Config, locator)
			if err != nil {
				return nil, err
			}
			return s, nil
		},
		storecache.WithCapacity(tenantCfg.CacheSize),
		storecache.WithOpenTimeout(tenantCfg.OpenTimeout),
		storecache.WithMetrics(metrics),
	)
	if err != nil {
		return err
	}
	defer stores.Close()

	models, err := llm.NewFactory(*llmCfg, nil)
	if err != nil {
		return err
	}
	probeCtx, cancelProbe := context.WithTimeout(ctx, llmCfg.Timeout)
	if err := openrouterx.Probe(probeCtx, openrouterx.NewClient(llmCfg.OpenRouter("")), llmCfg.Model); err != nil {
		log.Warn().Err(err).Str("model", llmCfg.Model).Msg("default model probe failed")
	}
	cancelProbe()

	agent, err := orderagent.New(*agentCfg, orderagent.WithMetrics(metrics))
	if err != nil {
		return err
	}

	mediaProvider, err := media.NewProvider(*mediaCfg)
	if err != nil {
		return err
	}
	if !mediaCfg.Enabled() {
		log.Info().Msg("no default media bucket; only tenants with their own media config accept uploads")
	}

	svc, err := chat.New(chat.Deps{
		Tenants: tenants,
		Stores:  stores,
		Agent:   agent,
		Models:  models,
		Limiter: ratelimit.New(*limitCfg),
		Media: func(ctx context.Context, cfg *media.Config) (chat.Uploader, error) {
			up, err := mediaProvider.ForTenant(ctx, cfg)
			if err != nil {
				return nil, err
			}
			return up, nil
		},
		Metrics: metrics,
	})
	if err != nil {
		return err
	}

	server := httpapi.New(svc, *appCfg, metrics, prometheus.DefaultGatherer)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Listen()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), appCfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}
