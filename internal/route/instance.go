// Package route holds the TOP data model: points, instances and the mutable
// route state with incremental travel, reward and violation bookkeeping.
package route

import (
	"errors"
	"fmt"
	"math"
)

// Size limits of an instance. The distance matrix holds MaxPoints² floats.
const (
	MaxPoints = 2000
	MaxCars   = 256
)

var (
	ErrTooFewPoints  = errors.New("instance needs at least a start and an end point")
	ErrTooManyPoints = fmt.Errorf("instance has more than %d points", MaxPoints)
	ErrNoCars        = errors.New("instance needs at least one car")
	ErrTooManyCars   = fmt.Errorf("instance has more than %d cars", MaxCars)
	ErrBadMaxTime    = errors.New("max time must be a finite non-negative number")
)

// Point is a reward-bearing location in the plane.
type Point struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Profit int     `json:"profit"`
}

// Distance returns the Euclidean distance between p and q.
func (p Point) Distance(q Point) float64 {
	return math.Hypot(p.X-q.X, p.Y-q.Y)
}

// Instance is read-only once built. Point 0 is the start, the last point is the end.
type Instance struct {
	name    string
	points  []Point
	cars    int
	maxTime float64
	dist    []float64
	total   int
}

// NewInstance validates the input and precomputes the distance matrix.
func NewInstance(name string, points []Point, cars int, maxTime float64) (*Instance, error) {
	if len(points) < 2 {
		return nil, fmt.Errorf("new instance %q: %w", name, ErrTooFewPoints)
	}
	if len(points) > MaxPoints {
		return nil, fmt.Errorf("new instance %q: %w", name, ErrTooManyPoints)
	}
	if cars < 1 {
		return nil, fmt.Errorf("new instance %q: %w", name, ErrNoCars)
	}
	if cars > MaxCars {
		return nil, fmt.Errorf("new instance %q: %w", name, ErrTooManyCars)
	}
	if maxTime < 0 || math.IsNaN(maxTime) || math.IsInf(maxTime, 0) {
		return nil, fmt.Errorf("new instance %q: %w", name, ErrBadMaxTime)
	}
	n := len(points)
	in := &Instance{
		name:    name,
		points:  append([]Point(nil), points...),
		cars:    cars,
		maxTime: maxTime,
		dist:    make([]float64, n*n),
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			d := in.points[i].Distance(in.points[j])
			in.dist[i*n+j] = d
			in.dist[j*n+i] = d
		}
	}
	for i := 1; i < n-1; i++ {
		in.total += in.points[i].Profit
	}
	return in, nil
}

func (in *Instance) Name() string      { return in.name }
func (in *Instance) Points() int       { return len(in.points) }
func (in *Instance) Point(i int) Point { return in.points[i] }
func (in *Instance) Cars() int         { return in.cars }
func (in *Instance) MaxTime() float64  { return in.maxTime }
func (in *Instance) Start() int        { return 0 }
func (in *Instance) End() int          { return len(in.points) - 1 }

// Distance returns the precomputed distance between points a and b.
func (in *Instance) Distance(a, b int) float64 {
	return in.dist[a*len(in.points)+b]
}

// TotalProfit is the sum of rewards over the intermediate points.
func (in *Instance) TotalProfit() int { return in.total }

// AllPoints returns a copy of the point list.
func (in *Instance) AllPoints() []Point {
	return append([]Point(nil), in.points...)
}
