package batch

import (
	"bytes"
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"topsolver/internal/integrations/dirsource"
	"topsolver/internal/opt"
	"topsolver/internal/route"
)

const lineInstance = "n 3\nm 1\ntmax 4\n0 0 0\n1 0 10\n2 0 0\n"

const spreadInstance = `n 6
m 2
tmax 20
0 0 0
1 2 5
2 4 10
4 1 8
5 -2 6
6 0 0
`

func writeInstances(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "p1.line.txt"), []byte(lineInstance), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "p2.spread.txt"), []byte(spreadInstance), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.md"), []byte("skip"), 0o644))
	return dir
}

func TestParsePlan(t *testing.T) {
	p, err := ParsePlan([]byte(`
- names: "p1\\..*"
  algos:
    - type: greedy
      descr: base
      options: {wTime: 0.5}
    - type: sd
- algos:
    - type: GREEDY RANGE
`))
	require.NoError(t, err)
	require.Len(t, p, 2)
	assert.True(t, p[0].Match("p1.line"))
	assert.False(t, p[0].Match("xp1.line"))
	assert.Equal(t, 0.5, p[0].Algos[0].Options.Float("wTime", 0))
	assert.NotNil(t, p[0].Algos[1].Options)
	assert.True(t, p[1].Match("anything"))
}

func TestParsePlanJSON(t *testing.T) {
	p, err := ParsePlan([]byte(`[{"names": ".*", "algos": [{"type": "greedy", "descr": "0.1#0.5", "options": {"wTime": 0.1, "maxDev": 0.5}}]}]`))
	require.NoError(t, err)
	assert.Equal(t, "0.1#0.5", p[0].Algos[0].Descr)
}

func TestParsePlanErrors(t *testing.T) {
	for name, doc := range map[string]string{
		"bad regex":      `[{"names": "(", "algos": [{"type": "greedy"}]}]`,
		"unknown solver": `[{"names": ".*", "algos": [{"type": "simplex"}]}]`,
		"no algos":       `[{"names": ".*"}]`,
		"not a list":     `names: x`,
	} {
		_, err := ParsePlan([]byte(doc))
		assert.Error(t, err, name)
	}
}

func TestExpandOrdersByInstance(t *testing.T) {
	dir := writeInstances(t)
	ins, err := LoadInstances(context.Background(), dirsource.New(dir))
	require.NoError(t, err)
	require.Len(t, ins, 2)
	p, err := ParsePlan([]byte(`[{"names": "p.*", "algos": [{"type": "greedy"}, {"type": "hc"}]}, {"names": "p2.*", "algos": [{"type": "bt"}]}]`))
	require.NoError(t, err)
	tasks := Expand(p, ins)
	require.Len(t, tasks, 5)
	assert.Equal(t, "p1.line", tasks[0].Instance.Name())
	assert.Equal(t, "hc", tasks[1].Algo.Type)
	assert.Equal(t, "p2.spread", tasks[4].Instance.Name())
	assert.Equal(t, "bt", tasks[4].Algo.Type)
}

func TestRunnerWritesRowsAndSolutions(t *testing.T) {
	dir := writeInstances(t)
	out := t.TempDir()
	ins, err := LoadInstances(context.Background(), dirsource.New(dir))
	require.NoError(t, err)
	p, err := ParsePlan([]byte(`
- names: ".*"
  algos:
    - {type: greedy, descr: base}
    - {type: sd, descr: polish, options: {maxTime: 1}}
`))
	require.NoError(t, err)

	ms := opt.NewMetricsStore()
	started := time.Now()
	r := &Runner{Workers: 2, Seed: 1, OutDir: out, Metrics: ms, Logf: t.Logf}
	var buf bytes.Buffer
	results, err := r.Run(context.Background(), Expand(p, ins), &buf)
	require.NoError(t, err)
	require.Len(t, results, 4)

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 5)
	assert.Equal(t, Header, rows[0])

	for _, res := range results {
		require.NoError(t, res.Err)
		assert.True(t, res.Feasible, res.Name)
		path := SolutionPath(out, res.Algo, res.Descr, res.Name)
		f, err := os.Open(path)
		require.NoError(t, err, path)
		st, err := route.ReadSolution(f, ins[res.Name])
		_ = f.Close()
		require.NoError(t, err)
		assert.Equal(t, res.Profit, st.Profit())
	}
	for _, res := range results {
		if res.Name == "p1.line" {
			assert.Equal(t, 10, res.Profit)
		}
	}

	rep := NewReport(started, results, ms)
	assert.Equal(t, 4, rep.Tasks)
	assert.Zero(t, rep.Failed)
	assert.Equal(t, 10, rep.Best["p1.line"].Profit)
	assert.Contains(t, rep.Best, "p2.spread")
	assert.Positive(t, rep.System.Cores)
}

func TestRunnerStopsOnCancelledContext(t *testing.T) {
	in, err := route.ReadInstance(bytes.NewReader([]byte(lineInstance)), "p1.line")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := &Runner{Workers: 1, Logf: t.Logf}
	_, err = r.Run(ctx, []Task{{Instance: in, Algo: Algo{Type: "greedy", Options: opt.Options{}}}}, &bytes.Buffer{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSolutionPath(t *testing.T) {
	assert.Equal(t, filepath.Join("out", "GREEDY", "default", "p1.out"), SolutionPath("out", "GREEDY", "", "p1"))
	assert.Equal(t, filepath.Join("out", "GREEDY_RANGE", "a_b", "p1.out"), SolutionPath("out", "GREEDY RANGE", "a/b", "p1"))
}
