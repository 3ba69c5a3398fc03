package route

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// tokens walks whitespace separated words and remembers the line each came from.
type tokens struct {
	sc     *bufio.Scanner
	fields []string
	line   int
}

func newTokens(r io.Reader) *tokens {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1<<20)
	return &tokens{sc: sc}
}

func (t *tokens) next() (string, error) {
	for len(t.fields) == 0 {
		if !t.sc.Scan() {
			if err := t.sc.Err(); err != nil {
				return "", err
			}
			return "", io.ErrUnexpectedEOF
		}
		t.line++
		t.fields = strings.Fields(t.sc.Text())
	}
	w := t.fields[0]
	t.fields = t.fields[1:]
	return w, nil
}

func (t *tokens) key(want string) error {
	w, err := t.next()
	if err != nil {
		return fmt.Errorf("line %d: reading %q: %w", t.line, want, err)
	}
	if w != want {
		return fmt.Errorf("line %d: expected %q, got %q", t.line, want, w)
	}
	return nil
}

func (t *tokens) readInt() (int, error) {
	w, err := t.next()
	if err != nil {
		return 0, fmt.Errorf("line %d: %w", t.line, err)
	}
	v, err := strconv.Atoi(w)
	if err != nil {
		return 0, fmt.Errorf("line %d: %w", t.line, err)
	}
	return v, nil
}

func (t *tokens) readFloat() (float64, error) {
	w, err := t.next()
	if err != nil {
		return 0, fmt.Errorf("line %d: %w", t.line, err)
	}
	v, err := strconv.ParseFloat(w, 64)
	if err != nil {
		return 0, fmt.Errorf("line %d: %w", t.line, err)
	}
	return v, nil
}

// readProfit accepts integers and integral floats such as "10.0".
func (t *tokens) readProfit() (int, error) {
	w, err := t.next()
	if err != nil {
		return 0, fmt.Errorf("line %d: %w", t.line, err)
	}
	if v, err := strconv.Atoi(w); err == nil {
		return v, nil
	}
	f, err := strconv.ParseFloat(w, 64)
	if err != nil || f != math.Trunc(f) {
		return 0, fmt.Errorf("line %d: profit %q is not an integer", t.line, w)
	}
	return int(f), nil
}

// ReadInstance parses the "n / m / tmax / x y profit" instance format.
func ReadInstance(r io.Reader, name string) (*Instance, error) {
	t := newTokens(r)
	if err := t.key("n"); err != nil {
		return nil, fmt.Errorf("read instance %s: %w", name, err)
	}
	n, err := t.readInt()
	if err != nil {
		return nil, fmt.Errorf("read instance %s: point count: %w", name, err)
	}
	if err := t.key("m"); err != nil {
		return nil, fmt.Errorf("read instance %s: %w", name, err)
	}
	m, err := t.readInt()
	if err != nil {
		return nil, fmt.Errorf("read instance %s: car count: %w", name, err)
	}
	if err := t.key("tmax"); err != nil {
		return nil, fmt.Errorf("read instance %s: %w", name, err)
	}
	tmax, err := t.readFloat()
	if err != nil {
		return nil, fmt.Errorf("read instance %s: max time: %w", name, err)
	}
	if n < 0 {
		return nil, fmt.Errorf("read instance %s: negative point count %d", name, n)
	}
	if n > MaxPoints {
		return nil, fmt.Errorf("read instance %s: point count %d: %w", name, n, ErrTooManyPoints)
	}
	var points []Point
	for i := 0; i < n; i++ {
		x, err := t.readFloat()
		if err != nil {
			return nil, fmt.Errorf("read instance %s: point %d x: %w", name, i, err)
		}
		y, err := t.readFloat()
		if err != nil {
			return nil, fmt.Errorf("read instance %s: point %d y: %w", name, i, err)
		}
		pr, err := t.readProfit()
		if err != nil {
			return nil, fmt.Errorf("read instance %s: point %d: %w", name, i, err)
		}
		points = append(points, Point{X: x, Y: y, Profit: pr})
	}
	if w, err := t.next(); err == nil {
		return nil, fmt.Errorf("read instance %s: line %d: unexpected %q after %d points", name, t.line, w, n)
	} else if !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, fmt.Errorf("read instance %s: %w", name, err)
	}
	return NewInstance(name, points, m, tmax)
}

// LoadInstanceFile reads an instance file and names it after the file's base name.
func LoadInstanceFile(path string) (*Instance, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return ReadInstance(f, filepath.Base(path))
}

func formatFloat(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }

// WriteInstance emits the instance format read by ReadInstance.
func WriteInstance(w io.Writer, in *Instance) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "n %d\nm %d\ntmax %s\n", in.Points(), in.Cars(), formatFloat(in.MaxTime()))
	for _, p := range in.points {
		fmt.Fprintf(bw, "%s\t%s\t%d\n", formatFloat(p.X), formatFloat(p.Y), p.Profit)
	}
	return bw.Flush()
}

// ReadSolution replays "h H / car point" lines onto a fresh state with forced appends.
func ReadSolution(r io.Reader, in *Instance) (*State, error) {
	t := newTokens(r)
	if err := t.key("h"); err != nil {
		return nil, fmt.Errorf("read solution: %w", err)
	}
	h, err := t.readInt()
	if err != nil {
		return nil, fmt.Errorf("read solution: hop count: %w", err)
	}
	st := NewState(in)
	for i := 0; i < h; i++ {
		car, err := t.readInt()
		if err != nil {
			return nil, fmt.Errorf("read solution: hop %d car: %w", i, err)
		}
		p, err := t.readInt()
		if err != nil {
			return nil, fmt.Errorf("read solution: hop %d point: %w", i, err)
		}
		if car < 0 || car >= in.Cars() {
			return nil, fmt.Errorf("read solution: line %d: car %d out of range [0,%d)", t.line, car, in.Cars())
		}
		if p < 0 || p >= in.Points() {
			return nil, fmt.Errorf("read solution: line %d: point %d out of range [0,%d)", t.line, p, in.Points())
		}
		st.Append(car, p, true)
	}
	return st, nil
}

// LoadSolutionFile reads a solution file against in.
func LoadSolutionFile(path string, in *Instance) (*State, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return ReadSolution(f, in)
}

// WriteSolution emits every car's hops in route order.
func WriteSolution(w io.Writer, st *State) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "h %d\n", st.TotalHops())
	for car := range st.hops {
		for _, p := range st.hops[car] {
			fmt.Fprintf(bw, "%d\t%d\n", car, p)
		}
	}
	return bw.Flush()
}

// SolutionText renders WriteSolution into a string.
func SolutionText(st *State) string {
	var b strings.Builder
	_ = WriteSolution(&b, st)
	return b.String()
}
