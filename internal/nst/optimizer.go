package nst

import (
	"fmt"
	"math"
)

const (
	adamBeta1   = 0.9
	adamBeta2   = 0.999
	adamEpsilon = 1e-8
)

// Adam keeps first and second moment estimates for a single parameter vector.
type Adam struct {
	lr   float64
	m, v []float64
	step int
}

func NewAdam(size int, lr float64) (*Adam, error) {
	if lr <= 0 {
		return nil, fmt.Errorf("learning rate must be positive, got %g", lr)
	}
	return &Adam{
		lr: lr,
		m:  make([]float64, size),
		v:  make([]float64, size),
	}, nil
}

// Step updates params in place from grads.
func (a *Adam) Step(params, grads []float64) error {
	if len(params) != len(a.m) || len(grads) != len(a.m) {
		return fmt.Errorf("adam sized for %d values, got %d params and %d grads", len(a.m), len(params), len(grads))
	}

	a.step++
	c1 := 1 - math.Pow(adamBeta1, float64(a.step))
	c2 := 1 - math.Pow(adamBeta2, float64(a.step))

	for i, g := range grads {
		a.m[i] = adamBeta1*a.m[i] + (1-adamBeta1)*g
		a.v[i] = adamBeta2*a.v[i] + (1-adamBeta2)*g*g
		mHat := a.m[i] / c1
		vHat := a.v[i] / c2
		params[i] -= a.lr * mHat / (math.Sqrt(vHat) + adamEpsilon)
	}

	return nil
}
