package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/overture-stack/ego-sub000/internal/authz"
	"github.com/overture-stack/ego-sub000/internal/httpapi"
	"github.com/overture-stack/ego-sub000/internal/idp"
	"github.com/overture-stack/ego-sub000/internal/obs"
	"github.com/overture-stack/ego-sub000/internal/session"
	"github.com/overture-stack/ego-sub000/internal/store/mem"
	"github.com/overture-stack/ego-sub000/internal/store/pg"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)
	log := obs.Logger()

	ctx := context.Background()

	// Store: Postgres when a DSN is configured, in-memory otherwise (dev
	// mode; nothing survives a restart).
	var store authz.Store
	var pgStore *pg.Store
	if dsn := os.Getenv("EGO_PG_DSN"); dsn != "" {
		var err error
		pgStore, err = pg.Open(dsn)
		if err != nil {
			log.WithError(err).Fatal("open postgres")
		}
		defer pgStore.Close()
		store = pgStore
	} else {
		log.Warn("EGO_PG_DSN not set, using in-memory store")
		store = mem.New()
	}

	redisURL := getenv("EGO_REDIS_URL", "redis://localhost:6379")
	redisOpts, err := redis.ParseURL(redisURL)
	if err != nil {
		log.WithError(err).Fatal("parse EGO_REDIS_URL")
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()

	privPEM, err := os.ReadFile(mustGetenv(log, "EGO_JWT_PRIVATE_KEY_FILE"))
	if err != nil {
		log.WithError(err).Fatal("read private key")
	}
	pubPEM, err := os.ReadFile(mustGetenv(log, "EGO_JWT_PUBLIC_KEY_FILE"))
	if err != nil {
		log.WithError(err).Fatal("read public key")
	}
	signer, err := authz.NewSigner(privPEM, pubPEM,
		getenv("EGO_ISSUER", "ego"), getduration("EGO_BEARER_TTL", time.Hour))
	if err != nil {
		log.WithError(err).Fatal("init signer")
	}

	bus := authz.NewBus()
	resolver := authz.NewResolver(store)
	reconciler := authz.NewReconciler(store, resolver, log)
	bus.Subscribe(reconciler)

	directory := authz.NewDirectory(store, bus)
	tokens := authz.NewTokenService(store, resolver,
		authz.WithTokenTTL(getduration("EGO_TOKEN_TTL", 365*24*time.Hour)))
	sessions := session.NewManager(redisClient, signer, resolver, store)

	var providers []idp.Provider
	if clientID := os.Getenv("EGO_GOOGLE_CLIENT_ID"); clientID != "" {
		google, err := idp.NewGoogle(ctx, clientID)
		if err != nil {
			log.WithError(err).Fatal("init google provider")
		}
		providers = append(providers, google)
	}
	if clientID := os.Getenv("EGO_FACEBOOK_CLIENT_ID"); clientID != "" {
		providers = append(providers,
			idp.NewFacebook(clientID, os.Getenv("EGO_FACEBOOK_CLIENT_SECRET")))
	}

	sweeper := authz.NewSweeper(store, reconciler, log)
	if err := sweeper.Start(getenv("EGO_SWEEP_SPEC", "@every 1h")); err != nil {
		log.WithError(err).Fatal("start sweeper")
	}
	defer sweeper.Stop()

	api := httpapi.New(httpapi.Config{
		Log:       log,
		Directory: directory,
		Tokens:    tokens,
		Resolver:  resolver,
		Signer:    signer,
		Sessions:  sessions,
		Providers: idp.NewRegistry(providers...),
		Ready: func(ctx context.Context) error {
			if pgStore != nil {
				if err := pgStore.DB().PingContext(ctx); err != nil {
					return err
				}
			}
			return redisClient.Ping(ctx).Err()
		},
		Version: version,
	})

	srv := &http.Server{
		Addr:              getenv("EGO_LISTEN_ADDR", ":8081"),
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.WithField("addr", srv.Addr).WithField("version", version).Info("starting ego")

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("listen")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	log.Info("stopped")
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func mustGetenv(log *logrus.Logger, key string) string {
	v := os.Getenv(key)
	if v == "" {
		log.Fatalf("%s is required", key)
	}
	return v
}

func getduration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
