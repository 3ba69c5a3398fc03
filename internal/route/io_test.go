package route

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const lineText = `n 3
m 1
tmax 4
0 0 0
1 0 10
2 0 0
`

func TestReadInstance(t *testing.T) {
	in, err := ReadInstance(strings.NewReader(lineText), "line")
	require.NoError(t, err)
	assert.Equal(t, 3, in.Points())
	assert.Equal(t, 1, in.Cars())
	assert.InDelta(t, 4, in.MaxTime(), 0)
	assert.Equal(t, Point{1, 0, 10}, in.Point(1))
	assert.Equal(t, 10, in.TotalProfit())
	assert.InDelta(t, 2, in.Distance(0, 2), 1e-12)
}

func TestReadInstanceIntegralFloatProfit(t *testing.T) {
	in, err := ReadInstance(strings.NewReader("n 2 m 1 tmax 1.5\n0 0 5.0\n1 1 7\n"), "f")
	require.NoError(t, err)
	assert.Equal(t, 5, in.Point(0).Profit)
	assert.InDelta(t, 1.5, in.MaxTime(), 0)
}

func TestReadInstanceErrors(t *testing.T) {
	cases := map[string]string{
		"missing header": "m 1\n",
		"bad count":      "n x\n",
		"truncated":      "n 3\nm 1\ntmax 4\n0 0 0\n",
		"fractional":     "n 2\nm 1\ntmax 4\n0 0 0.5\n1 1 1\n",
		"no cars":        "n 2\nm 0\ntmax 4\n0 0 0\n1 1 1\n",
		"too few points": "n 1\nm 1\ntmax 4\n0 0 0\n",
		"huge count":     "n 99999999999999\nm 1\ntmax 1\n0 0 0\n",
		"extra points":   "n 2\nm 1\ntmax 4\n0 0 0\n1 1 1\n2 2 2\n",
		"too many cars":  "n 2\nm 1000000000\ntmax 4\n0 0 0\n1 1 1\n",
	}
	for name, text := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ReadInstance(strings.NewReader(text), name)
			assert.Error(t, err)
		})
	}
}

func TestReadInstanceCapsPointCount(t *testing.T) {
	_, err := ReadInstance(strings.NewReader("n 99999999999999\nm 1\ntmax 1\n0 0 0\n"), "huge")
	assert.ErrorIs(t, err, ErrTooManyPoints)

	var b strings.Builder
	fmt.Fprintf(&b, "n %d\nm 1\ntmax 1\n", MaxPoints+1)
	for i := 0; i <= MaxPoints; i++ {
		b.WriteString("0 0 1\n")
	}
	_, err = ReadInstance(strings.NewReader(b.String()), "over")
	assert.ErrorIs(t, err, ErrTooManyPoints)

	_, err = NewInstance("over", make([]Point, MaxPoints+1), 1, 1)
	assert.ErrorIs(t, err, ErrTooManyPoints)
	_, err = NewInstance("cars", make([]Point, 2), MaxCars+1, 1)
	assert.ErrorIs(t, err, ErrTooManyCars)
}

func TestInstanceRoundTrip(t *testing.T) {
	in := gridInstance(t, 3, 12.25)
	var buf bytes.Buffer
	require.NoError(t, WriteInstance(&buf, in))
	back, err := ReadInstance(&buf, in.Name())
	require.NoError(t, err)
	assert.Equal(t, in.AllPoints(), back.AllPoints())
	assert.Equal(t, in.Cars(), back.Cars())
	assert.Equal(t, in.MaxTime(), back.MaxTime())
}

func TestSolutionRoundTrip(t *testing.T) {
	in := gridInstance(t, 2, 11)
	st := NewState(in)
	st.Append(0, 1, false)
	st.Append(0, 6, false)
	st.Append(1, 13, false)
	st.Append(1, 14, true)

	text := SolutionText(st)
	assert.True(t, strings.HasPrefix(text, "h 4\n"))

	back, err := ReadSolution(strings.NewReader(text), in)
	require.NoError(t, err)
	for car := 0; car < in.Cars(); car++ {
		assert.Equal(t, st.Route(car), back.Route(car))
		assert.InDelta(t, st.TravelTime(car), back.TravelTime(car), 1e-9)
	}
	assert.Equal(t, st.Profit(), back.Profit())
	assert.Equal(t, st.Violations(), back.Violations())
	require.NoError(t, back.Check())
}

func TestReadSolutionRejectsOutOfRange(t *testing.T) {
	in := lineInstance(t)
	_, err := ReadSolution(strings.NewReader("h 1\n1 1\n"), in)
	assert.ErrorContains(t, err, "car 1 out of range")
	_, err = ReadSolution(strings.NewReader("h 1\n0 3\n"), in)
	assert.ErrorContains(t, err, "point 3 out of range")
	_, err = ReadSolution(strings.NewReader("h 2\n0 1\n"), in)
	assert.Error(t, err)
}

func TestLoadFiles(t *testing.T) {
	dir := t.TempDir()
	ipath := filepath.Join(dir, "line.txt")
	require.NoError(t, os.WriteFile(ipath, []byte(lineText), 0o644))
	in, err := LoadInstanceFile(ipath)
	require.NoError(t, err)
	assert.Equal(t, "line.txt", in.Name())

	spath := filepath.Join(dir, "line.out")
	require.NoError(t, os.WriteFile(spath, []byte("h 1\n0\t1\n"), 0o644))
	st, err := LoadSolutionFile(spath, in)
	require.NoError(t, err)
	assert.Equal(t, 10, st.Profit())
	assert.True(t, st.Feasible())

	_, err = LoadInstanceFile(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}
