package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"modqueue/api/internal/app"
	"modqueue/api/internal/authn"
	"modqueue/api/internal/config"
	"modqueue/api/internal/contents"
	"modqueue/api/internal/export"
	"modqueue/api/internal/gitstore"
	"modqueue/api/internal/media"
	"modqueue/api/internal/repo"
	"modqueue/api/internal/search"
	"modqueue/api/internal/session"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	adminCfg, err := config.LoadAdminConfig(cfg.AdminConfigPath)
	if err != nil {
		log.Fatalf("admin config failed: %v", err)
	}

	creds := authn.NewCredentialStore(adminCfg.GitHubToken)
	signIn := authn.NewService(adminCfg, cfg.GitHubAPI, nil)

	var store *contents.Adapter
	var history *gitstore.Service
	switch cfg.ContentMode {
	case "local":
		local := gitstore.New(cfg.LocalRepoDir, "modqueue-admin")
		if err := local.Ensure(); err != nil {
			log.Fatalf("local content repo failed: %v", err)
		}
		store = contents.NewAdapter(local, nil)
		history = local
	default:
		backend := contents.NewGitHub(cfg.GitHubAPI, cfg.GitHubOwner, cfg.GitHubRepo, cfg.DataPath, creds, nil)
		var fallback contents.Fetcher
		if strings.TrimSpace(cfg.RawBaseURL) != "" {
			fallback = contents.NewStatic(cfg.RawBaseURL, nil)
		}
		store = contents.NewAdapter(backend, fallback)
	}

	var sessions interface {
		Close() error
	}
	var service *app.Service
	if strings.TrimSpace(cfg.RedisURL) != "" {
		log.Printf("Using Redis for session storage")
		redisStore, err := session.NewRedisStore(cfg.RedisURL)
		if err != nil {
			log.Fatalf("redis connection failed: %v", err)
		}
		sessions = redisStore
		service = app.New(cfg, store, redisStore, signIn, creds)
	} else {
		log.Printf("Using in-memory session storage")
		memStore := session.NewMemoryStore()
		sessions = memStore
		service = app.New(cfg, store, memStore, signIn, creds)
	}
	defer sessions.Close()

	memorySearch := search.NewMemory(service.Snapshot(), repo.Buckets)
	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
		defer meiliClient.Close()
	}
	service.WithSearch(search.NewService(meiliClient, memorySearch))

	mediaService, err := media.NewService(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.RawBaseURL, cfg.MinioUseSSL)
	if err != nil {
		log.Fatalf("media service failed: %v", err)
	}
	service.WithMedia(mediaService)
	service.WithDigest(export.NewService(service.Snapshot(), mediaService))
	if history != nil {
		service.WithHistory(history)
	}

	service.Bootstrap(ctx)

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("Modqueue API listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
