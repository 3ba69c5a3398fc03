// Package buildinfo exposes the version stamped at link time, falling back to the
// VCS data the Go toolchain embeds.
package buildinfo

import (
    "runtime"
    "runtime/debug"
    "sync"
)

// Set with -ldflags "-X topsolver/internal/buildinfo.Version=...".
var (
    Version = "dev"
    Commit  = ""
    BuiltAt = ""
)

var vcsOnce sync.Once

func fillFromVCS() {
    bi, ok := debug.ReadBuildInfo()
    if !ok { return }
    for _, s := range bi.Settings {
        switch s.Key {
        case "vcs.revision":
            if Commit == "" { Commit = s.Value }
        case "vcs.time":
            if BuiltAt == "" { BuiltAt = s.Value }
        }
    }
}

func Info() map[string]string {
    vcsOnce.Do(fillFromVCS)
    return map[string]string{
        "version": Version,
        "commit":  Commit,
        "builtAt": BuiltAt,
        "go":      runtime.Version(),
    }
}

// String is the one-line form used in startup logs.
func String() string {
    i := Info()
    s := i["version"]
    if c := i["commit"]; c != "" {
        if len(c) > 12 { c = c[:12] }
        s += "+" + c
    }
    return s
}
