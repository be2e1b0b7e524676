package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/zhouzirui/z-assess/backend/internal/config"
	"github.com/zhouzirui/z-assess/backend/internal/handler"
	"github.com/zhouzirui/z-assess/backend/internal/logger"
	"github.com/zhouzirui/z-assess/backend/internal/model/participant"
	"github.com/zhouzirui/z-assess/backend/internal/service/ai"
	assessmentService "github.com/zhouzirui/z-assess/backend/internal/service/assessment"
	"github.com/zhouzirui/z-assess/backend/internal/service/handoff"
	"github.com/zhouzirui/z-assess/backend/internal/service/report"
	"github.com/zhouzirui/z-assess/backend/internal/service/stage"
	"github.com/zhouzirui/z-assess/backend/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	zl, err := logger.New(cfg.Log.JSON, cfg.Log.Debug)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()
	zap.ReplaceGlobals(zl)

	gen := newGenerator(ctx, cfg, zl)
	participants := participant.NewMemoryStore(participant.Seed())

	sessions, reports, closeStore, err := newStores(ctx, cfg, zl)
	if err != nil {
		zl.Fatal("failed to initialize storage", zap.Error(err))
	}
	defer closeStore()

	notifier := newNotifier(ctx, cfg, zl)
	defer notifier.Close()

	registry := stage.Default(gen, stage.Options{
		ProfileMaxTurns:    cfg.Assessment.ProfileMaxTurns,
		TechnicalMaxTurns:  cfg.Assessment.TechnicalMaxTurns,
		BehavioralMaxTurns: cfg.Assessment.BehavioralMaxTurns,
	}, zl)
	planner := handoff.NewPlanner()

	svc := assessmentService.NewService(assessmentService.Dependencies{
		Sessions:     sessions,
		Reports:      reports,
		Participants: participants,
		Registry:     registry,
		Aggregator:   report.NewAggregator(registry, gen, cfg.Assessment.StageTimeout, zl),
		Planner:      planner,
		Notifier:     notifier,
		Logger:       zl,
	}, assessmentService.Config{
		HistoryWindow: cfg.Assessment.HistoryWindow,
		StageTimeout:  cfg.Assessment.StageTimeout,
	})
	review := handoff.NewReviewService(reports, planner, zl)

	router := handler.NewRouter(participants, svc, review, zl)

	startServer(ctx, cfg.Server, router, zl)
}

// newGenerator 优先使用 Ark 模型，未配置时退回脚本化生成器
func newGenerator(ctx context.Context, cfg *config.Config, zl *zap.Logger) ai.Generator {
	if !cfg.AI.Enabled() {
		zl.Info("Ark 凭证未配置，使用脚本化对话生成器")
		return ai.NewScripted()
	}

	chatModel, err := cfg.AI.NewChatModel(ctx)
	if err != nil {
		zl.Warn("failed to initialize chat model, falling back to scripted generator", zap.Error(err))
		return ai.NewScripted()
	}

	zl.Info("AI generator initialized", zap.String("model", cfg.AI.Model))
	return ai.WithTimeout(ai.NewChatModelGenerator(chatModel, zl), cfg.Assessment.StageTimeout)
}

func newStores(ctx context.Context, cfg *config.Config, zl *zap.Logger) (store.SessionStore, store.ReportStore, func(), error) {
	if cfg.Store.Backend != config.StoreRedis {
		zl.Info("using in-memory session store", zap.Duration("ttl", cfg.Assessment.SessionTTL))
		return store.NewMemorySessionStore(cfg.Assessment.SessionTTL), store.NewMemoryReportStore(), func() {}, nil
	}

	client, err := store.NewRedisClient(ctx, cfg.Store.RedisURL)
	if err != nil {
		return nil, nil, nil, err
	}
	zl.Info("using redis session store", zap.String("prefix", cfg.Store.KeyPrefix))

	closeFn := func() {
		if err := client.Close(); err != nil {
			zl.Warn("failed to close redis client", zap.Error(err))
		}
	}
	return store.NewRedisSessionStore(client, cfg.Store.KeyPrefix, cfg.Assessment.SessionTTL),
		store.NewRedisReportStore(client, cfg.Store.KeyPrefix),
		closeFn, nil
}

func newNotifier(ctx context.Context, cfg *config.Config, zl *zap.Logger) handoff.Notifier {
	if cfg.Handoff.NATSURL == "" {
		return handoff.NewLogNotifier(zl)
	}

	n, err := handoff.NewNATSNotifier(ctx, cfg.Handoff.NATSURL, cfg.Handoff.Subject, zl)
	if err != nil {
		zl.Warn("failed to connect to NATS, handoff events will only be logged", zap.Error(err))
		return handoff.NewLogNotifier(zl)
	}
	return n
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler, zl *zap.Logger) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	zl.Info("Z Assess backend listening", zap.String("addr", addr))
	if err := runServer(ctx, srv); err != nil {
		zl.Fatal("server error", zap.Error(err))
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
