package model

// API and storage types for instances, solve runs and webhook subscriptions.

type PointIn struct {
    X      float64 `json:"x"`
    Y      float64 `json:"y"`
    Profit int     `json:"profit"`
}

// InstanceIn carries either structured points or the instance text format.
type InstanceIn struct {
    Name    string    `json:"name"`
    Cars    int       `json:"cars,omitempty"`
    MaxTime float64   `json:"maxTime,omitempty"`
    Points  []PointIn `json:"points,omitempty"`
    Text    string    `json:"text,omitempty"`
}

type Instance struct {
    ID          string  `json:"id"`
    TenantID    string  `json:"tenantId"`
    Name        string  `json:"name"`
    Points      int     `json:"points"`
    Cars        int     `json:"cars"`
    MaxTime     float64 `json:"maxTime"`
    TotalProfit int     `json:"totalProfit"`
    Source      string  `json:"source,omitempty"` // api, dir
    Text        string  `json:"text,omitempty"`
    CreatedAt   string  `json:"createdAt,omitempty"`
}

type SolveRequest struct {
    TenantID        string         `json:"tenantId,omitempty"`
    InstanceID      string         `json:"instanceId,omitempty"`
    Instance        *InstanceIn    `json:"instance,omitempty"`
    Solver          string         `json:"solver"`
    Options         map[string]any `json:"options,omitempty"`
    Seed            int64          `json:"seed,omitempty"`
    TimeBudgetMs    int            `json:"timeBudgetMs,omitempty"`
    InitialSolution string         `json:"initialSolution,omitempty"` // solution text format
    Async           bool           `json:"async,omitempty"`
}

// Run statuses.
const (
    RunQueued    = "queued"
    RunRunning   = "running"
    RunCompleted = "completed"
    RunFailed    = "failed"
)

type Run struct {
    ID           string         `json:"id"`
    TenantID     string         `json:"tenantId"`
    InstanceID   string         `json:"instanceId"`
    InstanceName string         `json:"instanceName,omitempty"`
    Solver       string         `json:"solver"`
    Status       string         `json:"status"`
    Seed         int64          `json:"seed"`
    Options      map[string]any `json:"options,omitempty"`
    Profit       int            `json:"profit"`
    Feasible     bool           `json:"feasible"`
    Travel       float64        `json:"travel"`
    Routes       [][]int        `json:"routes,omitempty"`
    Solution     string         `json:"-"`
    Error        string         `json:"error,omitempty"`
    Metrics      map[string]any `json:"metrics,omitempty"`
    System       *SysInfo       `json:"system,omitempty"`
    CreatedAt    string         `json:"createdAt,omitempty"`
    StartedAt    string         `json:"startedAt,omitempty"`
    FinishedAt   string         `json:"finishedAt,omitempty"`
}

// SysInfo describes the host a run was solved on.
type SysInfo struct {
    Platform string `json:"platform"`
    CPU      string `json:"cpu"`
    Cores    int    `json:"cores"`
    RAM      string `json:"ram"`
}

type SubscriptionRequest struct {
    TenantID string   `json:"tenantId"`
    URL      string   `json:"url"`
    Events   []string `json:"events"`
    Secret   string   `json:"secret"`
}

type Subscription struct {
    ID       string   `json:"id"`
    TenantID string   `json:"tenantId"`
    URL      string   `json:"url"`
    Events   []string `json:"events"`
    Secret   string   `json:"secret,omitempty"`
}
