package internal

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/baalimago/chatmux/internal/config"
	"github.com/baalimago/chatmux/internal/discovery"
	"github.com/baalimago/chatmux/internal/ratelimit"
	"github.com/baalimago/chatmux/internal/ratelimit/db"
	"github.com/baalimago/chatmux/internal/router"
	"github.com/baalimago/chatmux/internal/server"
	"github.com/baalimago/chatmux/internal/tools"
	"github.com/baalimago/chatmux/internal/tools/mcp"
	pub_tools "github.com/baalimago/chatmux/pkg/tools"
	"github.com/baalimago/go_away_boilerplate/pkg/ancli"
	"github.com/baalimago/go_away_boilerplate/pkg/misc"
)

// App is the wired up service.
type App struct {
	Router       *router.Router
	Server       *server.Server
	Integrations *mcp.Manager

	conf    config.Config
	store   ratelimit.CounterStore
	limiter *ratelimit.Limiter
	closers []func()
}

// Setup builds the app from conf. Integrations which fail to connect are
// reported and skipped, the service is usable without them.
func Setup(ctx context.Context, conf config.Config) (*App, error) {
	app := &App{conf: conf}
	store, closeStore, err := setupStore(ctx, conf.RateLimit)
	if err != nil {
		return nil, err
	}
	app.store = store
	if closeStore != nil {
		app.closers = append(app.closers, closeStore)
	}
	app.limiter = ratelimit.NewLimiter(store, conf.RateLimit.Config)

	docs, err := setupDocuments(ctx, conf.Documents)
	if err != nil {
		app.Close()
		return nil, err
	}
	static, err := tools.NewStatic(conf.Tools.StaticConfig, docs)
	if err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to setup tools: %w", err)
	}
	sessions := tools.NewSessions(static)
	app.Integrations = mcp.NewManager(sessions)
	app.closers = append(app.closers, app.Integrations.Close)
	if len(conf.Integrations) > 0 {
		names, err := app.Integrations.ConnectShared(ctx, conf.Integrations)
		if err != nil {
			ancli.Warnf("failed to connect some integrations: %v\n", err)
		}
		if len(names) > 0 {
			ancli.Okf("integration tools: %v\n", names)
		}
	}

	exec := tools.NewExecutor()
	if conf.Tools.Timeout > 0 {
		exec.Timeout = conf.Tools.Timeout
	}
	if conf.Tools.MaxOutputRunes > 0 {
		exec.MaxOutputRunes = conf.Tools.MaxOutputRunes
	}
	disc := discovery.NewController()
	if conf.Tools.MaxDiscoveryDepth > 0 {
		disc.MaxDepth = conf.Tools.MaxDiscoveryDepth
	}

	providers := router.SetupProviders(conf.Providers)
	if len(providers) == 0 {
		ancli.Warnf("no provider is configured, set at least one of OPENAI_API_KEY, ANTHROPIC_API_KEY, MISTRAL_API_KEY, GEMINI_API_KEY or DEEPSEEK_API_KEY\n")
	}
	app.Router = router.New(router.NewCatalog(conf.Models), providers,
		router.WithLimiter(app.limiter),
		router.WithSessions(sessions),
		router.WithExecutor(exec),
		router.WithDiscovery(disc),
		router.WithMaxRounds(conf.Tools.MaxRounds),
	)
	var serverOpts []server.Option
	if conf.RateLimit.TrustTier {
		serverOpts = append(serverOpts, server.WithTrustedTier())
	}
	app.Server = server.New(app.Router, app.Integrations, serverOpts...)
	return app, nil
}

func setupStore(ctx context.Context, conf config.RateLimit) (ratelimit.CounterStore, func(), error) {
	if conf.Store == "" || conf.Store == "memory" {
		return ratelimit.NewMemoryStore(), nil, nil
	}
	store, err := db.NewStore(ctx, conf.Store, conf.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to setup rate limit store: %w", err)
	}
	closeStore := func() {
		if err := store.Close(); err != nil {
			ancli.Warnf("failed to close rate limit store: %v\n", err)
		}
	}
	return store, closeStore, nil
}

// setupDocuments returns nil if no document dir is configured.
func setupDocuments(ctx context.Context, conf config.Documents) (*pub_tools.DocumentStore, error) {
	if conf.Dir == "" {
		return nil, nil
	}
	embed := pub_tools.NewOpenAIEmbedder(conf.EmbeddingURL, os.Getenv(conf.EmbeddingKeyEnv), conf.EmbeddingModel)
	docs, err := pub_tools.NewDocumentStore(embed)
	if err != nil {
		return nil, fmt.Errorf("failed to create document store: %w", err)
	}
	n, err := docs.LoadDir(ctx, conf.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to load documents: %w", err)
	}
	ancli.Okf("loaded %v documents from: '%v'\n", n, conf.Dir)
	return docs, nil
}

// Reconfigure applies the parts of conf which may change while running:
// the model catalog and the rate limits.
func (a *App) Reconfigure(conf config.Config) {
	old := a.conf
	a.conf = conf
	a.Router.Catalog().Replace(conf.Models)
	a.limiter.SetConfig(conf.RateLimit.Config)
	if old.Addr != conf.Addr || old.RateLimit.Store != conf.RateLimit.Store || old.RateLimit.DSN != conf.RateLimit.DSN ||
		old.RateLimit.TrustTier != conf.RateLimit.TrustTier {
		ancli.Warnf("addr, rate_limit store and trust_tier changes require a restart\n")
	}
	if misc.Truthy(os.Getenv("DEBUG")) {
		ancli.Noticef("reconfigured, models: %v, free limit: %v\n", len(conf.Models), conf.RateLimit.Free)
	}
}

// Run serves until ctx is done. Expired usage records are swept meanwhile.
func (a *App) Run(ctx context.Context) error {
	interval := a.conf.RateLimit.SweepInterval
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	go ratelimit.Janitor(ctx, a.store, interval)
	return a.Server.Run(ctx, a.conf.Addr)
}

func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
