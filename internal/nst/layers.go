package nst

import (
	"fmt"
	"math"

	"nstbot/internal/core/domain"

	"gonum.org/v1/gonum/mat"
)

type LayerKind uint8

const (
	KindConv LayerKind = iota + 1
	KindReLU
	KindMaxPool
)

func (k LayerKind) String() string {
	switch k {
	case KindConv:
		return "conv"
	case KindReLU:
		return "relu"
	case KindMaxPool:
		return "maxpool"
	default:
		return fmt.Sprintf("layer(%d)", uint8(k))
	}
}

// Layer is one frozen stage of the feature network. Implementations never mutate their parameters, so a
// Layer may be shared by concurrent callers.
type Layer interface {
	Kind() LayerKind
	Forward(x *Tensor) (*Tensor, error)
	// Backward maps the gradient dy of the output y = Forward(x) to the gradient of the input x.
	Backward(x, y, dy *Tensor) *Tensor
}

// Conv2D is a stride-1 convolution with square kernels and zero padding.
type Conv2D struct {
	InC, OutC, K, Pad int
	// Weight has one row per output channel; columns are ordered (in channel, ky, kx).
	Weight *mat.Dense
	Bias   *mat.VecDense
}

// NewConv2D validates the parameter shapes and derives the channel counts from them.
func NewConv2D(weight *mat.Dense, bias *mat.VecDense, k, pad int) (*Conv2D, error) {
	if k <= 0 || pad < 0 {
		return nil, fmt.Errorf("invalid conv geometry k=%d pad=%d", k, pad)
	}

	outC, cols := weight.Dims()
	if cols%(k*k) != 0 {
		return nil, fmt.Errorf("conv weight has %d columns, not a multiple of %dx%d", cols, k, k)
	}
	if bias.Len() != outC {
		return nil, fmt.Errorf("conv bias has %d entries, want %d", bias.Len(), outC)
	}

	return &Conv2D{InC: cols / (k * k), OutC: outC, K: k, Pad: pad, Weight: weight, Bias: bias}, nil
}

func (l *Conv2D) Kind() LayerKind {
	return KindConv
}

func (l *Conv2D) outSize(h, w int) (int, int) {
	return h + 2*l.Pad - l.K + 1, w + 2*l.Pad - l.K + 1
}

func (l *Conv2D) Forward(x *Tensor) (*Tensor, error) {
	if x.C != l.InC {
		return nil, fmt.Errorf("%w: conv expects %d input channels, got %d", domain.ErrShapeMismatch, l.InC, x.C)
	}

	oh, ow := l.outSize(x.H, x.W)
	if oh <= 0 || ow <= 0 {
		return nil, fmt.Errorf("%w: input %s too small for %dx%d kernel", domain.ErrShapeMismatch, x.Shape(), l.K, l.K)
	}

	cols := im2col(x, l.K, l.Pad, oh, ow)

	y := NewTensor(l.OutC, oh, ow)
	out := y.Matrix()
	out.Mul(l.Weight, cols)

	for o := 0; o < l.OutC; o++ {
		b := l.Bias.AtVec(o)
		row := y.Data[o*oh*ow : (o+1)*oh*ow]
		for i := range row {
			row[i] += b
		}
	}

	return y, nil
}

func (l *Conv2D) Backward(x, y, dy *Tensor) *Tensor {
	rows := l.InC * l.K * l.K
	dcols := mat.NewDense(rows, y.H*y.W, nil)
	dcols.Mul(l.Weight.T(), dy.Matrix())

	return col2im(dcols, x.C, x.H, x.W, l.K, l.Pad, y.H, y.W)
}

// im2col lays every receptive field of x out as a column, so the convolution becomes one matrix product.
func im2col(x *Tensor, k, pad, oh, ow int) *mat.Dense {
	rows := x.C * k * k
	cols := oh * ow
	buf := make([]float64, rows*cols)

	for c := 0; c < x.C; c++ {
		for ky := 0; ky < k; ky++ {
			for kx := 0; kx < k; kx++ {
				row := (c*k+ky)*k + kx
				dst := buf[row*cols : (row+1)*cols]
				for oy := 0; oy < oh; oy++ {
					iy := oy + ky - pad
					if iy < 0 || iy >= x.H {
						continue
					}
					src := x.Data[(c*x.H+iy)*x.W : (c*x.H+iy+1)*x.W]
					for ox := 0; ox < ow; ox++ {
						ix := ox + kx - pad
						if ix < 0 || ix >= x.W {
							continue
						}
						dst[oy*ow+ox] = src[ix]
					}
				}
			}
		}
	}

	return mat.NewDense(rows, cols, buf)
}

func col2im(d *mat.Dense, c, h, w, k, pad, oh, ow int) *Tensor {
	dx := NewTensor(c, h, w)
	raw := d.RawMatrix()

	for ch := 0; ch < c; ch++ {
		for ky := 0; ky < k; ky++ {
			for kx := 0; kx < k; kx++ {
				row := raw.Data[((ch*k+ky)*k+kx)*raw.Stride:]
				for oy := 0; oy < oh; oy++ {
					iy := oy + ky - pad
					if iy < 0 || iy >= h {
						continue
					}
					dst := dx.Data[(ch*h+iy)*w : (ch*h+iy+1)*w]
					for ox := 0; ox < ow; ox++ {
						ix := ox + kx - pad
						if ix < 0 || ix >= w {
							continue
						}
						dst[ix] += row[oy*ow+ox]
					}
				}
			}
		}
	}

	return dx
}

type ReLU struct{}

func (ReLU) Kind() LayerKind {
	return KindReLU
}

func (ReLU) Forward(x *Tensor) (*Tensor, error) {
	y := NewTensor(x.C, x.H, x.W)
	for i, v := range x.Data {
		if v > 0 {
			y.Data[i] = v
		}
	}
	return y, nil
}

func (ReLU) Backward(x, _, dy *Tensor) *Tensor {
	dx := NewTensor(x.C, x.H, x.W)
	for i, v := range x.Data {
		if v > 0 {
			dx.Data[i] = dy.Data[i]
		}
	}
	return dx
}

// MaxPool2D pools non-overlapping or strided windows; partial windows at the border are dropped.
type MaxPool2D struct {
	Size, Stride int
}

func (MaxPool2D) Kind() LayerKind {
	return KindMaxPool
}

func (l MaxPool2D) outSize(h, w int) (int, int) {
	return (h-l.Size)/l.Stride + 1, (w-l.Size)/l.Stride + 1
}

func (l MaxPool2D) Forward(x *Tensor) (*Tensor, error) {
	if x.H < l.Size || x.W < l.Size {
		return nil, fmt.Errorf("%w: input %s too small for %dx%d pooling", domain.ErrShapeMismatch, x.Shape(), l.Size, l.Size)
	}

	oh, ow := l.outSize(x.H, x.W)
	y := NewTensor(x.C, oh, ow)

	for c := 0; c < x.C; c++ {
		for oy := 0; oy < oh; oy++ {
			for ox := 0; ox < ow; ox++ {
				_, v := l.argmax(x, c, oy, ox)
				y.Set(c, oy, ox, v)
			}
		}
	}

	return y, nil
}

func (l MaxPool2D) Backward(x, y, dy *Tensor) *Tensor {
	dx := NewTensor(x.C, x.H, x.W)

	for c := 0; c < y.C; c++ {
		for oy := 0; oy < y.H; oy++ {
			for ox := 0; ox < y.W; ox++ {
				idx, _ := l.argmax(x, c, oy, ox)
				dx.Data[idx] += dy.At(c, oy, ox)
			}
		}
	}

	return dx
}

// argmax returns the flat index and value of the first maximum inside the window for output (oy, ox).
func (l MaxPool2D) argmax(x *Tensor, c, oy, ox int) (int, float64) {
	best := math.Inf(-1)
	bestIdx := -1
	for ky := 0; ky < l.Size; ky++ {
		iy := oy*l.Stride + ky
		for kx := 0; kx < l.Size; kx++ {
			ix := ox*l.Stride + kx
			idx := (c*x.H+iy)*x.W + ix
			if v := x.Data[idx]; v > best || bestIdx < 0 {
				best = v
				bestIdx = idx
			}
		}
	}
	return bestIdx, best
}
