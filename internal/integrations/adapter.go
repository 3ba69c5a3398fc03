package integrations

import (
    "context"
    "errors"

    "topsolver/internal/route"
)

var ErrNoSuchInstance = errors.New("instance not found in source")

// InstanceSource is an external catalog of problem instances the API can import from.
type InstanceSource interface {
    Name() string
    List(ctx context.Context) ([]Entry, error)
    Load(ctx context.Context, name string) (Loaded, error)
}

// Entry is one listed instance. Header fields are read without parsing the points.
type Entry struct {
    Name    string  `json:"name"`
    Points  int     `json:"points"`
    Cars    int     `json:"cars"`
    MaxTime float64 `json:"maxTime"`
    Size    int64   `json:"size"`
}

// Loaded is a parsed instance together with its raw text.
type Loaded struct {
    Instance *route.Instance
    Text     string
}
