package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"

	"scopetree.org/internal/auth"
	"scopetree.org/internal/httpapi"
	"scopetree.org/internal/obs"
	"scopetree.org/internal/registry"
	"scopetree.org/internal/tenancy"
	"scopetree.org/internal/tenancy/rediscache"
)

var version = "0.3.0"

func main() {
	obs.Init()
	obs.InitBuildInfo(version, os.Getenv("SCOPETREE_COMMIT"))

	dsn := os.Getenv("SCOPETREE_PG_DSN")
	if dsn == "" {
		log.Fatal("missing SCOPETREE_PG_DSN")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	store := registry.NewPGStore(db)
	reg, err := registry.NewService(store)
	if err != nil {
		log.Fatalf("registry: %v", err)
	}

	directory := tenancy.NewPGDirectory(db)
	resolver, err := tenancy.NewResolver(directory, directory, directory, directory)
	if err != nil {
		log.Fatalf("resolver: %v", err)
	}

	ttl := 60 * time.Second
	if raw := os.Getenv("SCOPETREE_ALLOWSET_TTL_SECONDS"); raw != "" {
		if secs, err := strconv.Atoi(raw); err == nil && secs > 0 {
			ttl = time.Duration(secs) * time.Second
		}
	}
	var cache tenancy.AllowSetCache
	if addr := os.Getenv("SCOPETREE_REDIS_ADDR"); addr != "" {
		client := redis.NewClient(&redis.Options{Addr: addr})
		cache, err = rediscache.New(client, ttl)
		if err != nil {
			log.Fatalf("redis cache: %v", err)
		}
	} else {
		cache = tenancy.NewMemoryCache(ttl)
	}
	scopes, err := tenancy.NewCachedResolver(resolver, cache)
	if err != nil {
		log.Fatalf("cached resolver: %v", err)
	}

	var mgr *auth.Manager
	if secret := os.Getenv("SCOPETREE_AUTH_SECRET"); secret != "" {
		mgr, err = auth.NewManager(secret)
		if err != nil {
			log.Fatalf("auth: %v", err)
		}
	} else {
		log.Println("SCOPETREE_AUTH_SECRET not set; operator authentication disabled")
	}

	api := httpapi.New(httpapi.ReadyProbe{DB: db}, version, reg, scopes, mgr)

	addr := os.Getenv("SCOPETREE_LISTEN_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting scopetree-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	_ = db.Close()
	log.Println("Stopped")
}
