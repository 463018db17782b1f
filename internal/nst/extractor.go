package nst

import (
	"fmt"

	"nstbot/internal/core/domain"
)

// FeatureSet holds one activation tensor per monitored layer, in monitored order.
type FeatureSet []*Tensor

// Extractor is a frozen feature network truncated after its deepest monitored layer.
type Extractor struct {
	layers    []Layer
	monitored []int
}

// NewExtractor truncates layers after the highest monitored index. Indices must be strictly increasing.
func NewExtractor(layers []Layer, monitored []int) (*Extractor, error) {
	if len(monitored) == 0 {
		return nil, fmt.Errorf("%w: no monitored layers", domain.ErrResource)
	}

	for i, idx := range monitored {
		if idx < 0 || idx >= len(layers) {
			return nil, fmt.Errorf("%w: monitored layer %d out of range, model has %d layers",
				domain.ErrResource, idx, len(layers))
		}
		if i > 0 && idx <= monitored[i-1] {
			return nil, fmt.Errorf("%w: monitored layers must be strictly increasing, got %v",
				domain.ErrResource, monitored)
		}
	}

	last := monitored[len(monitored)-1]
	return &Extractor{
		layers:    layers[:last+1],
		monitored: append([]int(nil), monitored...),
	}, nil
}

// LoadExtractor reads a weights file written by WriteModel.
func LoadExtractor(path string, monitored []int) (*Extractor, error) {
	layers, err := ReadModelFile(path)
	if err != nil {
		return nil, err
	}
	return NewExtractor(layers, monitored)
}

func (e *Extractor) Monitored() []int {
	return append([]int(nil), e.monitored...)
}

func (e *Extractor) Depth() int {
	return len(e.layers)
}

// InputChannels returns the channel count the first convolution expects, or 0 if there is none.
func (e *Extractor) InputChannels() int {
	for _, l := range e.layers {
		if conv, ok := l.(*Conv2D); ok {
			return conv.InC
		}
	}
	return 0
}

// Extract runs the network on x and keeps only the monitored activations.
func (e *Extractor) Extract(x *Tensor) (FeatureSet, error) {
	features := make(FeatureSet, 0, len(e.monitored))
	next := 0
	cur := x

	for i, layer := range e.layers {
		out, err := layer.Forward(cur)
		if err != nil {
			return nil, fmt.Errorf("layer %d (%s): %w", i, layer.Kind(), err)
		}
		if next < len(e.monitored) && e.monitored[next] == i {
			features = append(features, out)
			next++
		}
		cur = out
	}

	return features, nil
}

// Trace keeps every intermediate activation of one forward pass for Backward.
type Trace struct {
	// acts[0] is the input, acts[i+1] the output of layer i.
	acts      []*Tensor
	monitored []int
}

func (tr *Trace) Features() FeatureSet {
	fs := make(FeatureSet, len(tr.monitored))
	for i, idx := range tr.monitored {
		fs[i] = tr.acts[idx+1]
	}
	return fs
}

func (e *Extractor) Trace(x *Tensor) (*Trace, error) {
	acts := make([]*Tensor, 0, len(e.layers)+1)
	acts = append(acts, x)

	for i, layer := range e.layers {
		out, err := layer.Forward(acts[i])
		if err != nil {
			return nil, fmt.Errorf("layer %d (%s): %w", i, layer.Kind(), err)
		}
		acts = append(acts, out)
	}

	return &Trace{acts: acts, monitored: e.monitored}, nil
}

// Backward propagates per-layer activation gradients (aligned with the monitored order) to the input.
// Only the input receives a gradient; layer parameters are untouched.
func (e *Extractor) Backward(tr *Trace, grads []*Tensor) (*Tensor, error) {
	if len(grads) != len(e.monitored) {
		return nil, fmt.Errorf("got %d gradients for %d monitored layers", len(grads), len(e.monitored))
	}

	var g *Tensor
	next := len(e.monitored) - 1

	for i := len(e.layers) - 1; i >= 0; i-- {
		if next >= 0 && e.monitored[next] == i {
			if grads[next].Shape() != tr.acts[i+1].Shape() {
				return nil, fmt.Errorf("layer %d gradient has shape %s, activation is %s",
					i, grads[next].Shape(), tr.acts[i+1].Shape())
			}
			if g == nil {
				g = grads[next].Clone()
			} else if err := g.AddScaled(1, grads[next]); err != nil {
				return nil, fmt.Errorf("layer %d gradient: %w", i, err)
			}
			next--
		}
		g = e.layers[i].Backward(tr.acts[i], tr.acts[i+1], g)
	}

	return g, nil
}
