package features

import (
	"math"

	"annadata/internal/frame"
)

// Stat names the statistic a Scalar is fitted with.
type Stat int

const (
	StatMean Stat = iota
	StatMin
)

// Scalar is a fitted constant read by a DeriveFunc, e.g. the mean crop year.
type Scalar struct {
	Name   string
	Column string
	Stat   Stat
}

// Cycle encodes Column as a sine/cosine pair over Period.
type Cycle struct {
	SinName string
	CosName string
	Column  string
	Period  float64
}

// Op is an interaction operator.
type Op int

const (
	Ratio Op = iota
	Product
	Sum
)

// Interaction combines two columns into a named feature. Ratio divides by
// Right+Epsilon; Product multiplies and then applies Scale (0 means 1).
type Interaction struct {
	Name    string
	Left    string
	Right   string
	Op      Op
	Epsilon float64
	Scale   float64
}

func (in Interaction) apply(l, r float64) float64 {
	switch in.Op {
	case Ratio:
		return l / (r + in.Epsilon)
	case Product:
		if in.Scale != 0 {
			return l * r * in.Scale
		}
		return l * r
	case Sum:
		return l + r
	}
	return math.NaN()
}

// DeriveFunc adds dataset-specific columns. scalars holds the fitted values
// of the spec's Scalars by name.
type DeriveFunc func(f *frame.Frame, scalars map[string]float64) error

// Spec declares what the engine derives for one dataset.
type Spec struct {
	Dataset     string
	GroupColumn string
	Required    []string

	LogColumns []string
	CapExclude []string

	Scalars []Scalar
	Derive  DeriveFunc

	Calendar bool
	Cycles   []Cycle

	LagColumns     []string
	Lags           []int
	RollingColumns []string
	Windows        []int

	Interactions []Interaction

	// Target is the source column of the label; TargetLead shifts it forward
	// within each group (1 = next record).
	Target     string
	TargetLead int

	// Exclude lists float columns kept in the frame but left out of the schema.
	Exclude []string
}

func (s *Spec) excluded() map[string]bool {
	m := make(map[string]bool, len(s.Exclude))
	for _, c := range s.Exclude {
		m[c] = true
	}
	return m
}
