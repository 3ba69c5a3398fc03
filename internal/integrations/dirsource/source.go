// Package dirsource serves instances stored as text files in one directory.
package dirsource

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"topsolver/internal/integrations"
	"topsolver/internal/route"
)

const ext = ".txt"

var validName = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

type Source struct {
	Dir string
}

func New(dir string) *Source { return &Source{Dir: dir} }

func (s *Source) Name() string { return "dir" }

// List returns the instances sorted by name.
func (s *Source) List(ctx context.Context) ([]integrations.Entry, error) {
	files, err := os.ReadDir(s.Dir)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", s.Dir, err)
	}
	out := []integrations.Entry{}
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if f.IsDir() || !strings.HasSuffix(f.Name(), ext) {
			continue
		}
		e, err := s.header(f.Name())
		if err != nil {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// header reads the n/m/tmax lines only.
func (s *Source) header(file string) (integrations.Entry, error) {
	path := filepath.Join(s.Dir, file)
	fi, err := os.Stat(path)
	if err != nil {
		return integrations.Entry{}, err
	}
	f, err := os.Open(path)
	if err != nil {
		return integrations.Entry{}, err
	}
	defer f.Close()
	e := integrations.Entry{Name: strings.TrimSuffix(file, ext), Size: fi.Size()}
	sc := bufio.NewScanner(f)
	seen := 0
	for seen < 3 && sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		if len(fields) != 2 {
			return integrations.Entry{}, fmt.Errorf("%s: bad header line %q", file, sc.Text())
		}
		switch fields[0] {
		case "n":
			e.Points, err = strconv.Atoi(fields[1])
		case "m":
			e.Cars, err = strconv.Atoi(fields[1])
		case "tmax":
			e.MaxTime, err = strconv.ParseFloat(fields[1], 64)
		default:
			return integrations.Entry{}, fmt.Errorf("%s: unexpected key %q", file, fields[0])
		}
		if err != nil {
			return integrations.Entry{}, fmt.Errorf("%s: %w", file, err)
		}
		seen++
	}
	if seen < 3 {
		return integrations.Entry{}, fmt.Errorf("%s: truncated header", file)
	}
	return e, sc.Err()
}

// Load parses the named instance. Names are plain file stems; paths are rejected.
func (s *Source) Load(ctx context.Context, name string) (integrations.Loaded, error) {
	if err := ctx.Err(); err != nil {
		return integrations.Loaded{}, err
	}
	name = strings.TrimSuffix(name, ext)
	if !validName.MatchString(name) {
		return integrations.Loaded{}, fmt.Errorf("%w: %q", integrations.ErrNoSuchInstance, name)
	}
	b, err := os.ReadFile(filepath.Join(s.Dir, name+ext))
	if err != nil {
		if os.IsNotExist(err) {
			return integrations.Loaded{}, fmt.Errorf("%w: %q", integrations.ErrNoSuchInstance, name)
		}
		return integrations.Loaded{}, err
	}
	in, err := route.ReadInstance(bytes.NewReader(b), name)
	if err != nil {
		return integrations.Loaded{}, err
	}
	return integrations.Loaded{Instance: in, Text: string(b)}, nil
}
