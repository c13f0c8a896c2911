package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"joinarr.org/internal/config"
	"joinarr.org/internal/directory/emby"
	"joinarr.org/internal/httpapi"
	"joinarr.org/internal/invites"
	"joinarr.org/internal/notify"
	"joinarr.org/internal/obs"
	"joinarr.org/internal/provision"
	"joinarr.org/internal/store/pg"
)

var (
	version = "0.3.1"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.PGDSN == "" {
		log.Fatal("config: JOINARR_PG_DSN is required")
	}

	store, err := pg.Open(cfg.PGDSN)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}

	dir := emby.New(cfg.MediaURL, cfg.MediaToken, emby.WithTimeout(cfg.MediaTimeout))

	var notifier provision.Notifier = notify.Nop{}
	if cfg.NtfyURL != "" {
		notifier = notify.NewPusher(cfg.NtfyURL, cfg.NtfyTopic)
	}

	svc := provision.New(store, dir, invites.NewChecker(store, nil),
		provision.WithNotifier(notifier),
		provision.WithCompensatingDelete(cfg.CompensateRemote),
	)

	api := httpapi.New(httpapi.ReadyProbe{DB: store.DB()}, version, svc)
	api.SetRateLimit(cfg.RateBurst, cfg.RatePerSec)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting joinarr %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	// Scheduled directory sync. Sync serializes its passes internally, so
	// the ticker and the HTTP-triggered syncs can coexist.
	if cfg.SyncInterval > 0 {
		go func() {
			ticker := time.NewTicker(cfg.SyncInterval)
			defer ticker.Stop()
			for range ticker.C {
				ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
				if _, err := svc.Sync(ctx); err != nil {
					obs.Error("scheduled sync failed", map[string]any{"error": err.Error()})
				}
				cancel()
			}
		}()
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	api.Close()
	_ = store.Close()
	log.Println("Stopped")
}
