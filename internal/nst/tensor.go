package nst

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Shape is the (channels, height, width) extent of a Tensor.
type Shape struct {
	C, H, W int
}

func (s Shape) String() string {
	return fmt.Sprintf("%dx%dx%d", s.C, s.H, s.W)
}

// Len returns the number of elements a tensor of this shape holds.
func (s Shape) Len() int {
	return s.C * s.H * s.W
}

// Tensor is a dense channel-major image or activation map. Element (c, y, x) lives at Data[(c*H+y)*W+x].
type Tensor struct {
	C, H, W int
	Data    []float64
}

// NewTensor allocates a zeroed tensor.
func NewTensor(c, h, w int) *Tensor {
	return &Tensor{C: c, H: h, W: w, Data: make([]float64, c*h*w)}
}

// NewTensorFrom wraps data without copying. It fails if the length does not match the shape.
func NewTensorFrom(c, h, w int, data []float64) (*Tensor, error) {
	if len(data) != c*h*w {
		return nil, fmt.Errorf("tensor data length %d does not match shape %dx%dx%d", len(data), c, h, w)
	}
	return &Tensor{C: c, H: h, W: w, Data: data}, nil
}

func (t *Tensor) Shape() Shape {
	return Shape{C: t.C, H: t.H, W: t.W}
}

func (t *Tensor) Len() int {
	return len(t.Data)
}

func (t *Tensor) At(c, y, x int) float64 {
	return t.Data[(c*t.H+y)*t.W+x]
}

func (t *Tensor) Set(c, y, x int, v float64) {
	t.Data[(c*t.H+y)*t.W+x] = v
}

// Clone returns a deep copy.
func (t *Tensor) Clone() *Tensor {
	c := NewTensor(t.C, t.H, t.W)
	copy(c.Data, t.Data)
	return c
}

// Matrix returns the (C x H*W) view of the tensor. The view shares memory with the tensor.
func (t *Tensor) Matrix() *mat.Dense {
	return mat.NewDense(t.C, t.H*t.W, t.Data)
}

// AddScaled adds alpha*o to t in place.
func (t *Tensor) AddScaled(alpha float64, o *Tensor) error {
	if t.Shape() != o.Shape() {
		return fmt.Errorf("add %s to %s: shapes differ", o.Shape(), t.Shape())
	}
	floats.AddScaled(t.Data, alpha, o.Data)
	return nil
}

// Clamp limits every element to [lo, hi].
func (t *Tensor) Clamp(lo, hi float64) {
	for i, v := range t.Data {
		switch {
		case v < lo:
			t.Data[i] = lo
		case v > hi:
			t.Data[i] = hi
		}
	}
}
