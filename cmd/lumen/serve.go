package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/lumenlabs/lumen/internal/config"
	"github.com/lumenlabs/lumen/internal/conversation"
	"github.com/lumenlabs/lumen/internal/db"
	"github.com/lumenlabs/lumen/internal/event"
	"github.com/lumenlabs/lumen/internal/filecontext"
	"github.com/lumenlabs/lumen/internal/handlers"
	"github.com/lumenlabs/lumen/internal/jobs"
	"github.com/lumenlabs/lumen/internal/logger"
	"github.com/lumenlabs/lumen/internal/orchestrator"
	"github.com/lumenlabs/lumen/internal/schedule"
	"github.com/lumenlabs/lumen/internal/search"
	"github.com/lumenlabs/lumen/internal/server"
	"github.com/lumenlabs/lumen/internal/version"
)

func runServe() {
	fx.New(
		fx.Provide(
			provideConfig,
			provideLogger,
			provideDBConn,
			provideConversationService,
			provideFileContextService,
			provideSearchClient,
			provideJobsClient,
			event.NewBroker,
			provideReconciler,
			providePollManager,
			provideOrchestrator,
			providePruner,
			provideServerHandler(handlers.NewPingHandler),
			provideServerHandler(provideQueryHandler),
			provideServerHandler(provideConversationHandler),
			provideServerHandler(provideFileContextHandler),
			provideServerHandler(provideAnswerHandler),
			provideServerHandler(handlers.NewEventsHandler),
			provideServer,
		),
		fx.Invoke(
			startPruner,
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

func provideDBConn(lc fx.Lifecycle, cfg config.Config) (*pgxpool.Pool, error) {
	conn, err := db.Open(context.Background(), cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	lc.Append(fx.Hook{OnStop: func(ctx context.Context) error { conn.Close(); return nil }})
	return conn, nil
}

func provideConversationService(log *slog.Logger, conn *pgxpool.Pool) *conversation.Service {
	return conversation.NewService(log, conn)
}

func provideFileContextService(log *slog.Logger, conn *pgxpool.Pool) *filecontext.Service {
	return filecontext.NewService(log, conn)
}

func provideSearchClient(log *slog.Logger, cfg config.Config) *search.Client {
	return search.NewClient(log, cfg.Search)
}

func provideJobsClient(log *slog.Logger, cfg config.Config) *jobs.Client {
	return jobs.NewClient(log, cfg.JobRunner)
}

func provideReconciler(log *slog.Logger, convs *conversation.Service, broker *event.Broker) *orchestrator.Reconciler {
	return orchestrator.NewReconciler(log, convs, broker)
}

func providePollManager(log *slog.Logger, cfg config.Config, runner *jobs.Client, reconciler *orchestrator.Reconciler, broker *event.Broker) *orchestrator.Manager {
	return orchestrator.NewManager(log, cfg.Poll, runner, reconciler, broker)
}

func provideOrchestrator(log *slog.Logger, convs *conversation.Service, searcher *search.Client, runner *jobs.Client, files *filecontext.Service, pollers *orchestrator.Manager, reconciler *orchestrator.Reconciler, broker *event.Broker) *orchestrator.Service {
	return orchestrator.NewService(log, convs, searcher, runner, files, pollers, reconciler, broker)
}

func providePruner(log *slog.Logger, cfg config.Config, files *filecontext.Service) *schedule.Pruner {
	return schedule.NewPruner(log, cfg.FileContext, files)
}

func provideQueryHandler(log *slog.Logger, orch *orchestrator.Service) *handlers.QueryHandler {
	return handlers.NewQueryHandler(log, orch)
}

func provideConversationHandler(log *slog.Logger, orch *orchestrator.Service, convs *conversation.Service) *handlers.ConversationHandler {
	return handlers.NewConversationHandler(log, orch, convs)
}

func provideFileContextHandler(log *slog.Logger, files *filecontext.Service) *handlers.FileContextHandler {
	return handlers.NewFileContextHandler(log, files)
}

func provideAnswerHandler(log *slog.Logger, convs *conversation.Service) *handlers.AnswerHandler {
	return handlers.NewAnswerHandler(log, convs)
}

type serverParams struct {
	fx.In
	Logger   *slog.Logger
	Config   config.Config
	Handlers []server.Handler `group:"server_handlers"`
}

func provideServer(params serverParams) *server.Server {
	return server.New(params.Logger, params.Config, params.Handlers...)
}

func startPruner(lc fx.Lifecycle, pruner *schedule.Pruner) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error { return pruner.Start() },
		OnStop:  func(ctx context.Context) error { pruner.Stop(); return nil },
	})
}

func startServer(lc fx.Lifecycle, log *slog.Logger, srv *server.Server, orch *orchestrator.Service, shutdowner fx.Shutdowner) {
	fmt.Printf("Starting Lumen %s\n", version.GetInfo())
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("server failed", slog.Any("error", err))
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			orch.Shutdown()
			if err := srv.Stop(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server stop: %w", err)
			}
			return nil
		},
	})
}
