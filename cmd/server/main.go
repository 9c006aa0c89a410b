package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"petpos/terminal/internal/cache"
	"petpos/terminal/internal/cartstore"
	cartmemory "petpos/terminal/internal/cartstore/memory"
	cartpg "petpos/terminal/internal/cartstore/postgres"
	"petpos/terminal/internal/catalog"
	"petpos/terminal/internal/config"
	"petpos/terminal/internal/httpapi"
	"petpos/terminal/internal/remote"
	"petpos/terminal/internal/service"
	"petpos/terminal/internal/xid"
)

func main() {
	cfg := config.Load()
	if err := validateConfig(cfg); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var carts cartstore.Store
	closers := make([]func() error, 0, 2)

	if cfg.DatabaseURL != "" {
		pg, err := cartpg.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("postgres unavailable (%v) and DATABASE_URL is set; refusing to start with in-memory fallback", err)
		}
		carts = pg
		closers = append(closers, pg.Close)
		log.Println("cart store: postgres")
	} else {
		carts = cartmemory.New()
		log.Println("cart store: in-memory (carts will not survive restarts)")
	}

	snapshotCache := cache.SnapshotCache(cache.NoopSnapshotCache{})
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisSnapshotCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			log.Printf("redis unavailable (%v), using noop cache", err)
		} else {
			snapshotCache = redisCache
			closers = append(closers, redisCache.Close)
			log.Println("snapshot cache: redis")
		}
	} else {
		log.Println("snapshot cache: noop")
	}

	terminalID := xid.New(cfg.TerminalName)
	shopAPI := remote.New(cfg.ShopAPIBaseURL, time.Duration(cfg.ShopAPITimeoutSecs)*time.Second, terminalID)
	snapshot := catalog.NewSnapshot(shopAPI, snapshotCache, time.Duration(cfg.SnapshotTTLSeconds)*time.Second)

	svc := service.New(shopAPI, snapshot, carts)
	auth := httpapi.NewAuthManager(shopAPI, time.Duration(cfg.IdentityTTLSeconds)*time.Second)
	api := httpapi.New(svc, auth, cfg.AllowedOrigin)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Printf("terminal %s listening on %s (shop api %s)", terminalID, cfg.Address(), cfg.ShopAPIBaseURL)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Printf("close error: %v", err)
		}
	}

	log.Println("server stopped")
}

func validateConfig(cfg config.Config) error {
	parsed, err := url.Parse(cfg.ShopAPIBaseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("SHOP_API_BASE_URL must be an absolute URL, got %q", cfg.ShopAPIBaseURL)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("SHOP_API_BASE_URL must be http or https, got %q", parsed.Scheme)
	}
	if cfg.TerminalName == "" {
		return fmt.Errorf("TERMINAL_NAME must not be empty")
	}
	return nil
}
