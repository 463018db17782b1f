package nst

import (
	"fmt"
	"math/rand/v2"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func newRand() *rand.Rand {
	return rand.New(rand.NewPCG(7, 11))
}

func randomConv(t *testing.T, rng *rand.Rand, in, out, k, pad int) *Conv2D {
	t.Helper()

	w := make([]float64, out*in*k*k)
	for i := range w {
		w[i] = rng.NormFloat64() * 0.5
	}
	b := make([]float64, out)
	for i := range b {
		b[i] = rng.NormFloat64() * 0.1
	}

	conv, err := NewConv2D(mat.NewDense(out, in*k*k, w), mat.NewVecDense(out, b), k, pad)
	require.NoError(t, err)
	return conv
}

func randomTensor(rng *rand.Rand, c, h, w int) *Tensor {
	x := NewTensor(c, h, w)
	for i := range x.Data {
		x.Data[i] = rng.Float64()
	}
	return x
}

// tinyNetwork mirrors the conv/relu/pool rhythm of the real feature network at toy scale.
func tinyNetwork(t *testing.T) []Layer {
	t.Helper()

	rng := newRand()
	return []Layer{
		randomConv(t, rng, 3, 4, 3, 1),
		ReLU{},
		MaxPool2D{Size: 2, Stride: 2},
		randomConv(t, rng, 4, 5, 3, 1),
		ReLU{},
		randomConv(t, rng, 5, 3, 1, 0),
	}
}

type memoryCodec struct {
	mu      sync.Mutex
	images  map[string]*Tensor
	saved   map[string]*Tensor
	saves   int
	loadErr error
	saveErr error
}

func newMemoryCodec() *memoryCodec {
	return &memoryCodec{images: map[string]*Tensor{}, saved: map[string]*Tensor{}}
}

func (m *memoryCodec) Load(path string) (*Tensor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.loadErr != nil {
		return nil, m.loadErr
	}
	img, ok := m.images[path]
	if !ok {
		return nil, fmt.Errorf("no such image %s", path)
	}
	return img.Clone(), nil
}

func (m *memoryCodec) Save(t *Tensor, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.saveErr != nil {
		return m.saveErr
	}
	m.saves++
	m.saved[path] = t.Clone()
	return nil
}
