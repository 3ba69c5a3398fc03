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

    "topsolver/internal/api"
    "topsolver/internal/buildinfo"
)

func main() {
    // .env is optional; real environment variables win
    _ = godotenv.Load()

    srvDeps, err := api.NewServer()
    if err != nil {
        log.Fatalf("failed to init server: %v", err)
    }

    addr := ":8080"
    if v := os.Getenv("PORT"); v != "" {
        addr = ":" + v
    }

    srv := &http.Server{
        Addr:              addr,
        Handler:           srvDeps.Handler(),
        ReadHeaderTimeout: 5 * time.Second,
    }

    ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
    defer stop()

    // Start webhook worker
    worker := srvDeps.NewWebhookWorker()
    worker.Start(ctx)

    go func() {
        log.Printf("API listening on %s version=%s", addr, buildinfo.String())
        if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
            log.Fatalf("server error: %v", err)
        }
    }()

    <-ctx.Done()
    log.Printf("shutting down")
    shutCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
    defer cancel()
    if err := srv.Shutdown(shutCtx); err != nil {
        log.Printf("http shutdown err=%v", err)
    }
    if err := srvDeps.Shutdown(shutCtx); err != nil {
        log.Printf("solver shutdown err=%v", err)
    }
}
