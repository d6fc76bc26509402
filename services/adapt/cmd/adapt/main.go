package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"textadapt/internal/ratelimit"
	"textadapt/internal/usertoken"
	"textadapt/internal/util"
	"textadapt/pkg/ai"
	"textadapt/pkg/queue"
	"textadapt/pkg/storage"
	"textadapt/pkg/store"
	"textadapt/services/adapt/internal/app"
	"textadapt/services/adapt/internal/config"
	"textadapt/services/adapt/internal/server"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := util.InitLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	jobs, profiles, closeStores := openStores(cfg)
	defer closeStores()

	generator, err := newGenerator(cfg)
	if err != nil {
		util.Fatal("failed to init generation provider", "err", err)
	}

	appCfg := app.Config{
		Jobs:              jobs,
		Profiles:          profiles,
		Rewriter:          app.NewOracleRewriter(generator),
		MaxParagraphs:     cfg.MaxParagraphs,
		MaxParagraphRunes: cfg.MaxParagraphRunes,
	}

	if cfg.SubmitRateLimitPerMinute > 0 {
		limiter, err := ratelimit.NewRedisFixedWindowLimiter(cfg.RedisAddr, cfg.RedisPassword, "textadapt:ratelimit:submit", cfg.SubmitRateLimitPerMinute, time.Minute)
		if err != nil {
			util.Fatal("failed to init rate limiter", "err", err)
		}
		defer limiter.Close()
		appCfg.Limiter = limiter
	}

	if cfg.ArchiveEnabled() {
		objects, err := storage.NewMinioStore(storage.MinioConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
		if err != nil {
			util.Fatal("failed to init report archive", "err", err)
		}
		appCfg.Archive = storage.NewReportArchive(objects)
	}

	var taskQueue *queue.RedisTaskQueue
	if cfg.DispatchMode == config.DispatchQueue {
		taskQueue, err = queue.NewRedisTaskQueue(queue.RedisQueueConfig{
			Addr:       cfg.RedisAddr,
			Password:   cfg.RedisPassword,
			Stream:     cfg.QueueStream,
			Group:      cfg.QueueGroup,
			MaxRetries: cfg.QueueMaxRetries,
			RetryDelay: cfg.QueueRetryDelay(),
		})
		if err != nil {
			util.Fatal("failed to init analysis queue", "err", err)
		}
		defer taskQueue.Close()
		appCfg.Queue = taskQueue
	}

	appCore, err := app.New(appCfg)
	if err != nil {
		util.Fatal("failed to init app", "err", err)
	}
	if taskQueue != nil {
		appCore.Consume(ctx, taskQueue, cfg.QueueConcurrency)
	}

	leeway, err := config.ParseJWTLeeway(cfg.JWTLeeway)
	if err != nil {
		util.Fatal("invalid jwt leeway", "err", err)
	}
	verifier, err := usertoken.NewVerifier(usertoken.Config{
		JWKSURL:  cfg.AuthJWKSURL,
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		Leeway:   leeway,
	})
	if err != nil {
		util.Fatal("failed to init token verifier", "err", err)
	}

	trusted, err := util.NewTrustedProxies(cfg.TrustedProxyCIDRs)
	if err != nil {
		util.Fatal("invalid trusted proxy cidrs", "err", err)
	}

	httpServer, err := server.New(server.Config{
		App:            appCore,
		Verifier:       verifier,
		TrustedProxies: trusted,
	})
	if err != nil {
		util.Fatal("failed to init server", "err", err)
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown error", "err", err)
		}
	}()

	slog.Info("adapt server listening", "addr", addr, "dispatch", cfg.DispatchMode, "provider", cfg.GenerationProvider)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "err", err)
	}
	appCore.Wait()
	slog.Info("adapt server stopped")
}

// openStores returns the job and profile stores selected by config. A
// postgres connection is shared when both stores use it.
func openStores(cfg config.FileConfig) (store.JobStore, store.ProfileStore, func()) {
	var closers []func()
	var pg *store.GormStore
	postgres := func() *store.GormStore {
		if pg == nil {
			s, err := store.NewGormStore(cfg.DatabaseURL)
			if err != nil {
				util.Fatal("failed to open database", "err", err)
			}
			pg = s
		}
		return pg
	}
	mem := store.NewMemoryStore()

	var jobs store.JobStore
	switch cfg.JobStore {
	case config.StoreRedis:
		rs, err := store.NewRedisJobStore(store.RedisJobStoreConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			TTL:      cfg.JobTTL(),
		})
		if err != nil {
			util.Fatal("failed to init redis job store", "err", err)
		}
		closers = append(closers, func() { _ = rs.Close() })
		jobs = rs
	case config.StorePostgres:
		jobs = postgres()
	default:
		jobs = mem
	}

	var profiles store.ProfileStore
	if cfg.ProfileStore == config.StorePostgres {
		profiles = postgres()
	} else {
		profiles = mem
	}

	return jobs, profiles, func() {
		for _, c := range closers {
			c()
		}
	}
}

func newGenerator(cfg config.FileConfig) (ai.StructuredGenerator, error) {
	timeout := cfg.GenerationTimeout()
	switch cfg.GenerationProvider {
	case config.ProviderGemini:
		client, err := ai.NewGeminiClient(cfg.GenerationAPIKey, cfg.GenerationBaseURL, timeout)
		if err != nil {
			return nil, err
		}
		return ai.NewGeminiGenerator(client, cfg.GenerationModel), nil
	case config.ProviderOpenAI:
		return ai.NewOpenAICompatGenerator(cfg.GenerationBaseURL, cfg.GenerationAPIKey, cfg.GenerationModel, timeout), nil
	case config.ProviderOllama:
		return ai.NewOllamaGenerator(ai.NewOllamaClient(cfg.GenerationBaseURL, timeout), cfg.GenerationModel), nil
	default:
		return nil, fmt.Errorf("unknown generation provider %q", cfg.GenerationProvider)
	}
}
