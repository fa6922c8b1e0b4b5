package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"classifieds/internal/app"
	"classifieds/internal/config"
	"classifieds/internal/ratelimit"
	"classifieds/internal/server"
	"classifieds/internal/usertoken"
	"classifieds/internal/util"
	"classifieds/pkg/ai"
	"classifieds/pkg/chatlog"
	"classifieds/pkg/storage"
	"classifieds/pkg/store"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: failed to load config: %v\n", err)
		os.Exit(1)
	}

	util.InitLogger(cfg.LogLevel)

	tokenVerifier, err := usertoken.NewVerifier(usertoken.Config{
		JWKSURL:    cfg.JWKSURL,
		Issuer:     cfg.TokenIssuer,
		Audience:   cfg.TokenAudience,
		HTTPClient: &http.Client{Timeout: 5 * time.Second},
	})
	if err != nil {
		util.Fatal("failed to init jwks verifier", "err", err)
	}

	catalog, err := store.NewGormStore(cfg.DatabaseURL)
	if err != nil {
		util.Fatal("failed to init postgres store", "err", err)
	}

	var images storage.ObjectStore
	if cfg.MinioEndpoint != "" {
		minioStore, err := storage.NewMinioStore(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL)
		if err != nil {
			util.Fatal("failed to init object store", "err", err)
		}
		images = minioStore
	}

	llm := ai.NewOpenAIClient(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.OpenAIModel)
	engine := app.NewMatchingEngine(catalog, images, 0)

	var policy app.Policy
	switch cfg.Policy {
	case config.PolicyExactMatch:
		policy = app.NewExactMatchPolicy(llm, engine, cfg.ExactMatchUniversity, cfg.ExactMatchFaculty)
	default:
		policy = app.NewToolCallingPolicy(llm, engine)
	}
	appCore, err := app.New(policy)
	if err != nil {
		util.Fatal("failed to init app", "err", err)
	}

	limiter, err := ratelimit.NewRedisFixedWindowLimiter(cfg.RedisAddr, cfg.RedisPass, "classifieds:ratelimit", cfg.RateLimitPerMinute, time.Minute)
	if err != nil {
		util.Fatal("failed to init rate limiter", "err", err)
	}

	recorder, err := chatlog.NewRedisRecorder(chatlog.Config{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPass,
		Stream:   cfg.ChatLogStream,
	})
	if err != nil {
		util.Fatal("failed to init chatlog recorder", "err", err)
	}

	trusted, err := util.NewTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		util.Fatal("failed to parse trusted proxies", "err", err)
	}

	httpServer := server.New(server.Config{
		App:           appCore,
		Catalog:       catalog,
		TokenVerifier: tokenVerifier,
		RateLimiter:   limiter,
		ChatLog:       recorder,
		Trusted:       trusted,
		Debug:         cfg.Debug,
	})

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:        addr,
		Handler:     httpServer.Router(),
		ReadTimeout: 15 * time.Second,
		// Two sequential 30s provider round-trips must fit in one response.
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("chatbot server listening", "addr", addr, "policy", cfg.Policy)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "err", err)
	}
}
