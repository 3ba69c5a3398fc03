package opt

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Options is the loose parameter bag handed to a solver. Values usually come from
// JSON request bodies or YAML plan files, so numbers may arrive as int, float64 or string.
type Options map[string]any

// ParseOptions decodes a YAML or JSON object.
func ParseOptions(data []byte) (Options, error) {
	o := Options{}
	if len(strings.TrimSpace(string(data))) == 0 {
		return o, nil
	}
	if err := yaml.Unmarshal(data, &o); err != nil {
		return nil, fmt.Errorf("parse options: %w", err)
	}
	return o, nil
}

// LoadOptionsFile reads an options file; an empty path yields an empty bag.
func LoadOptionsFile(path string) (Options, error) {
	if path == "" {
		return Options{}, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseOptions(b)
}

// Merge returns a copy of o overlaid with the entries of other.
func (o Options) Merge(other Options) Options {
	out := make(Options, len(o)+len(other))
	for k, v := range o {
		out[k] = v
	}
	for k, v := range other {
		out[k] = v
	}
	return out
}

func (o Options) Float(name string, def float64) float64 {
	switch v := o[name].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case uint64:
		return float64(v)
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return f
		}
	}
	return def
}

func (o Options) Int(name string, def int) int {
	switch v := o[name].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case uint64:
		return int(v)
	case float64:
		if v == math.Trunc(v) {
			return int(v)
		}
	case string:
		if i, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return i
		}
	}
	return def
}

func (o Options) Bool(name string, def bool) bool {
	switch v := o[name].(type) {
	case bool:
		return v
	case string:
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			return b
		}
	}
	return def
}

func (o Options) String(name, def string) string {
	if v, ok := o[name].(string); ok && v != "" {
		return v
	}
	return def
}

// Duration accepts Go duration strings ("1m30s") or a number of seconds.
func (o Options) Duration(name string, def time.Duration) time.Duration {
	if s, ok := o[name].(string); ok {
		if d, err := time.ParseDuration(strings.TrimSpace(s)); err == nil {
			return d
		}
	}
	secs := o.Float(name, math.NaN())
	if math.IsNaN(secs) || secs < 0 {
		return def
	}
	return time.Duration(secs * float64(time.Second))
}
