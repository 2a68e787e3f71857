package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/bwmarrin/discordgo"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	rootdb "github.com/opiyodhiambo/zrebot/db"
	"github.com/opiyodhiambo/zrebot/internal/alias"
	"github.com/opiyodhiambo/zrebot/internal/boot"
	"github.com/opiyodhiambo/zrebot/internal/config"
	"github.com/opiyodhiambo/zrebot/internal/db"
	"github.com/opiyodhiambo/zrebot/internal/discord"
	"github.com/opiyodhiambo/zrebot/internal/handlers"
	"github.com/opiyodhiambo/zrebot/internal/logger"
	"github.com/opiyodhiambo/zrebot/internal/server"
	"github.com/opiyodhiambo/zrebot/internal/version"
	"github.com/opiyodhiambo/zrebot/internal/voidcheck"
)

func provideConfig() (config.Config, error) {
	cfgPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func provideLogger(cfg config.Config) *slog.Logger {
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return logger.L
}

func main() {
	fx.New(
		fx.Provide(
			provideConfig,
			boot.ProvideRuntimeConfig,
			provideLogger,

			// storage
			provideAliasBackend,
			provideAliasStore,
			provideLegacyStore,

			// metrics
			provideRegistry,
			voidcheck.NewMetrics,

			// discord
			provideSession,
			provideDiscordClient,
			provideVoidCheckService,
			provideCommands,

			provideServerHandler(provideReadiness),
			provideServerHandler(handlers.NewMetricsHandler),
			provideServerHandler(provideStatusHandler),
			provideServer,
		),
		fx.Invoke(
			runAliasMigration,
			startDiscord,
			startServer,
		),
		fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: logger.With(slog.String("component", "fx"))}
		}),
	).Run()
}

func provideServerHandler(fn any) any {
	return fx.Annotate(
		fn,
		fx.As(new(server.Handler)),
		fx.ResultTags(`group:"server_handlers"`),
	)
}

type registryResult struct {
	fx.Out
	Registerer prometheus.Registerer
	Gatherer   prometheus.Gatherer
}

func provideRegistry() registryResult {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return registryResult{Registerer: reg, Gatherer: reg}
}

// provideAliasBackend migrates the Postgres schema when needed and opens the transactional store.
func provideAliasBackend(lc fx.Lifecycle, log *slog.Logger, cfg config.Config, rc *boot.RuntimeConfig) (*boot.AliasBackend, error) {
	if rc.AliasBackend == boot.BackendPostgres {
		if err := db.RunMigrate(log, cfg.Postgres, rootdb.MigrationsFS, db.MigrateUp, nil); err != nil {
			return nil, fmt.Errorf("%w: %w", alias.ErrStoreUnavailable, err)
		}
	}
	ctx := context.Background()
	backend, err := boot.OpenAliasBackend(ctx, log, cfg)
	if err != nil {
		return nil, fmt.Errorf("open alias store: %w", err)
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return backend.Close()
		},
	})
	return backend, nil
}

func provideAliasStore(backend *boot.AliasBackend) alias.Importer {
	return backend.Store
}

// provideLegacyStore opens the legacy alias file only when it is due to be migrated; nil otherwise.
func provideLegacyStore(lc fx.Lifecycle, log *slog.Logger, cfg config.Config) (*alias.FileStore, error) {
	if !cfg.Alias.MigrateOnStart {
		return nil, nil
	}
	legacy, err := boot.OpenLegacyStore(log, cfg.Alias)
	if err != nil {
		return nil, fmt.Errorf("open legacy alias file: %w", err)
	}
	if legacy != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				return legacy.Close()
			},
		})
	}
	return legacy, nil
}

func provideSession(lc fx.Lifecycle, cfg config.Config) (*discordgo.Session, error) {
	session, err := discord.NewSession(cfg.Discord.Token)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return session.Close()
		},
	})
	return session, nil
}

func provideDiscordClient(log *slog.Logger, session *discordgo.Session, rc *boot.RuntimeConfig) *discord.Client {
	return discord.NewClient(log, session, rc.Client)
}

func provideVoidCheckService(log *slog.Logger, client *discord.Client, store alias.Importer, metrics *voidcheck.Metrics, rc *boot.RuntimeConfig) *voidcheck.Service {
	return voidcheck.NewService(log, client, store, metrics, rc.Check)
}

func provideCommands(log *slog.Logger, svc *voidcheck.Service, store alias.Importer, rc *boot.RuntimeConfig) *discord.Commands {
	return discord.NewCommands(log, svc, store, rc.ModRoleIDs)
}

func provideReadiness(log *slog.Logger, backend *boot.AliasBackend) *handlers.PingHandler {
	checks := map[string]handlers.Pinger{}
	if backend.Pool != nil {
		checks["postgres"] = backend.Pool
	}
	return handlers.NewPingHandler(log, checks)
}

func provideStatusHandler(log *slog.Logger, store alias.Importer, rc *boot.RuntimeConfig) *handlers.StatusHandler {
	return handlers.NewStatusHandler(log, rc.AliasBackend, store)
}

type serverParams struct {
	fx.In
	Logger         *slog.Logger
	RuntimeConfig  *boot.RuntimeConfig
	ServerHandlers []server.Handler `group:"server_handlers"`
}

func provideServer(params serverParams) *server.Server {
	return server.NewServer(params.Logger, params.RuntimeConfig.ServerAddr, params.ServerHandlers...)
}

type migrationParams struct {
	fx.In
	Lifecycle fx.Lifecycle
	Logger    *slog.Logger
	Legacy    *alias.FileStore
	Store     alias.Importer
}

// runAliasMigration moves the legacy file into the transactional store before the bot
// starts serving. A store that cannot be read aborts start-up.
func runAliasMigration(p migrationParams) {
	if p.Legacy == nil {
		return
	}
	guard := alias.NewGuard(p.Logger, p.Legacy, p.Store)
	p.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			report, err := guard.Run(ctx)
			if err != nil {
				return fmt.Errorf("alias migration: %w", err)
			}
			if report.State != alias.StateMigrated {
				return nil
			}
			v, err := guard.Verify(ctx)
			if err != nil {
				return fmt.Errorf("alias migration verify: %w", err)
			}
			if !v.OK() {
				p.Logger.Warn("alias migration verification found mismatches",
					slog.Int("matches", v.Matches),
					slog.Int("mismatches", len(v.Mismatches)),
				)
			}
			return nil
		},
	})
}

func startDiscord(lc fx.Lifecycle, logger *slog.Logger, session *discordgo.Session, commands *discord.Commands, rc *boot.RuntimeConfig) {
	runCtx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			session.AddHandler(commands.Handler(runCtx))
			session.AddHandler(func(_ *discordgo.Session, r *discordgo.Ready) {
				logger.Info("discord ready", slog.String("user", r.User.Username), slog.Int("guilds", len(r.Guilds)))
			})
			if err := session.Open(); err != nil {
				return fmt.Errorf("open discord session: %w", err)
			}
			return commands.Register(session, rc.GuildID)
		},
		OnStop: func(ctx context.Context) error {
			cancel()
			return nil
		},
	})
}

func startServer(lc fx.Lifecycle, logger *slog.Logger, srv *server.Server, shutdowner fx.Shutdowner) {
	fmt.Printf("Starting zrebot %s\n", version.GetInfo())
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("server failed", slog.Any("error", err))
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := srv.Stop(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("server stop: %w", err)
			}
			return nil
		},
	})
}
