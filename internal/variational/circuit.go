// Package variational implements the alternate estimator: a simulated
// parameterised circuit fitted by derivative-free optimisation on a
// PCA-compressed feature matrix.
package variational

import (
	"math"
	"math/bits"
)

// circuit simulates a feature-map plus trainable-layer circuit over width
// qubits. Basis index bit q is qubit q.
type circuit struct {
	width          int
	featureMapReps int
	ansatzReps     int
}

// numParams is the trainable rotation count.
func (c circuit) numParams() int { return c.width * (c.ansatzReps + 1) }

// expectation prepares |0…0⟩, applies the feature map for x and the trainable
// layers for theta, and returns the parity ⟨Z⊗…⊗Z⟩. state is scratch space of
// length 2^width.
func (c circuit) expectation(x, theta []float64, state []complex128) float64 {
	for i := range state {
		state[i] = 0
	}
	state[0] = 1

	for r := 0; r < c.featureMapReps; r++ {
		for q := 0; q < c.width; q++ {
			hadamard(state, q)
			phase(state, q, 2*x[q])
		}
		for q := 0; q+1 < c.width; q++ {
			cx(state, q, q+1)
			phase(state, q+1, 2*(math.Pi-x[q])*(math.Pi-x[q+1]))
			cx(state, q, q+1)
		}
	}

	p := 0
	for r := 0; r < c.ansatzReps; r++ {
		for q := 0; q < c.width; q++ {
			ry(state, q, theta[p])
			p++
		}
		for i := 0; i < c.width; i++ {
			for j := i + 1; j < c.width; j++ {
				cx(state, i, j)
			}
		}
	}
	for q := 0; q < c.width; q++ {
		ry(state, q, theta[p])
		p++
	}

	var e float64
	for k, a := range state {
		prob := real(a)*real(a) + imag(a)*imag(a)
		if bits.OnesCount(uint(k))%2 == 1 {
			e -= prob
		} else {
			e += prob
		}
	}
	return e
}

func hadamard(state []complex128, q int) {
	mask := 1 << q
	for k := range state {
		if k&mask != 0 {
			continue
		}
		a, b := state[k], state[k|mask]
		state[k] = (a + b) * math.Sqrt2 / 2
		state[k|mask] = (a - b) * math.Sqrt2 / 2
	}
}

func phase(state []complex128, q int, angle float64) {
	mask := 1 << q
	rot := complex(math.Cos(angle), math.Sin(angle))
	for k := range state {
		if k&mask != 0 {
			state[k] *= rot
		}
	}
}

func ry(state []complex128, q int, angle float64) {
	mask := 1 << q
	c := complex(math.Cos(angle/2), 0)
	s := complex(math.Sin(angle/2), 0)
	for k := range state {
		if k&mask != 0 {
			continue
		}
		a, b := state[k], state[k|mask]
		state[k] = c*a - s*b
		state[k|mask] = s*a + c*b
	}
}

func cx(state []complex128, control, target int) {
	cm, tm := 1<<control, 1<<target
	for k := range state {
		if k&cm != 0 && k&tm == 0 {
			state[k], state[k|tm] = state[k|tm], state[k]
		}
	}
}
