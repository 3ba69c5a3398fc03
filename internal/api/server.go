package api

import (
    "context"
    "log"
    "os"
    "strconv"
    "strings"
    "sync"
    "time"

    "golang.org/x/time/rate"

    "topsolver/internal/auth"
    "topsolver/internal/integrations"
    "topsolver/internal/integrations/dirsource"
    "topsolver/internal/store"
    "topsolver/internal/webhooks"
)

// Config is read from the environment once at startup.
type Config struct {
    DatabaseURL   string
    SQLitePath    string
    Migrate       bool
    RedisURL      string
    InstancesDir  string
    RateRPS       float64
    RateBurst     int
    ProgressRPS   float64
    SolveMaxTime  time.Duration
    WebhookSecret string
}

func ConfigFromEnv() Config {
    cfg := Config{
        DatabaseURL:  strings.TrimSpace(os.Getenv("DATABASE_URL")),
        SQLitePath:   strings.TrimSpace(os.Getenv("SQLITE_PATH")),
        Migrate:      os.Getenv("DB_MIGRATE") != "false",
        RedisURL:     os.Getenv("REDIS_URL"),
        InstancesDir: os.Getenv("INSTANCES_DIR"),
        RateRPS:      envFloat("RATE_RPS", 0),
        RateBurst:    int(envFloat("RATE_BURST", 20)),
        ProgressRPS:  envFloat("PROGRESS_RPS", 5),
        SolveMaxTime: 5 * time.Minute,
        WebhookSecret: os.Getenv(webhooks.SecretEnv),
    }
    if v := os.Getenv("SOLVE_MAX_TIME"); v != "" {
        if d, err := time.ParseDuration(v); err == nil && d > 0 { cfg.SolveMaxTime = d }
    }
    return cfg
}

func envFloat(k string, def float64) float64 {
    if v := os.Getenv(k); v != "" {
        if f, err := strconv.ParseFloat(v, 64); err == nil { return f }
    }
    return def
}

type Server struct {
    Store   store.Store
    Pub     *webhooks.Publisher
    Auth    *auth.Verifier
    Broker  EventBroker
    Sources map[string]integrations.InstanceSource
    Cfg     Config

    limiter *rate.Limiter
    baseCtx context.Context
    wg      sync.WaitGroup
    mu      sync.Mutex
    cancels map[string]context.CancelFunc // run id -> cancel of an in-flight solve
}

// NewServer creates a Server from the environment. Without DATABASE_URL or SQLITE_PATH the
// in-memory store is used.
func NewServer() (*Server, error) {
    return NewServerWithConfig(ConfigFromEnv())
}

func NewServerWithConfig(cfg Config) (*Server, error) {
    if cfg.SolveMaxTime <= 0 { cfg.SolveMaxTime = 5 * time.Minute }
    st, err := openStore(cfg)
    if err != nil { return nil, err }
    var broker EventBroker
    if cfg.RedisURL != "" {
        if rb, err := NewRedisBroker(cfg.RedisURL); err == nil {
            broker = rb
        } else {
            log.Printf("broker=memory redis_err=%v", err)
            broker = NewBroker()
        }
    } else {
        broker = NewBroker()
    }
    s := &Server{
        Store:   st,
        Pub:     &webhooks.Publisher{Store: st, Secret: cfg.WebhookSecret},
        Auth:    auth.NewVerifierFromEnv(),
        Broker:  broker,
        Sources: map[string]integrations.InstanceSource{},
        Cfg:     cfg,
        baseCtx: context.Background(),
        cancels: map[string]context.CancelFunc{},
    }
    if cfg.InstancesDir != "" {
        src := dirsource.New(cfg.InstancesDir)
        s.Sources[src.Name()] = src
    }
    if cfg.RateRPS > 0 {
        s.limiter = rate.NewLimiter(rate.Limit(cfg.RateRPS), cfg.RateBurst)
    }
    return s, nil
}

func openStore(cfg Config) (store.Store, error) {
    switch {
    case cfg.DatabaseURL != "":
        sp, err := store.NewPostgres(cfg.DatabaseURL)
        if err != nil { return nil, err }
        if cfg.Migrate {
            if err := sp.Migrate(context.Background()); err != nil { return nil, err }
        }
        log.Printf("store=postgres")
        return sp, nil
    case cfg.SQLitePath != "":
        sp, err := store.NewSQLite(cfg.SQLitePath)
        if err != nil { return nil, err }
        if err := sp.Migrate(context.Background()); err != nil { return nil, err }
        return sp, nil
    default:
        log.Printf("store=memory")
        return store.NewMemory(), nil
    }
}

// NewWebhookWorker creates a background worker for webhook deliveries.
func (s *Server) NewWebhookWorker() *webhooks.Worker {
    return webhooks.NewWorker(s.Store)
}

// Shutdown cancels in-flight solves and waits for them to record their state.
func (s *Server) Shutdown(ctx context.Context) error {
    s.mu.Lock()
    for _, cancel := range s.cancels { cancel() }
    s.mu.Unlock()
    done := make(chan struct{})
    go func() { s.wg.Wait(); close(done) }()
    select {
    case <-done:
        return nil
    case <-ctx.Done():
        return ctx.Err()
    }
}
