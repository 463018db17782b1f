package nst

import (
	"errors"
	"fmt"

	"nstbot/internal/core/domain"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// ContentLoss is the mean squared error between two equally shaped tensors.
func ContentLoss(gen, orig *Tensor) (float64, error) {
	if gen.Shape() != orig.Shape() {
		return 0, fmt.Errorf("%w: content %s vs %s", domain.ErrShapeMismatch, gen.Shape(), orig.Shape())
	}
	if gen.Len() == 0 {
		return 0, nil
	}

	diff := make([]float64, gen.Len())
	floats.SubTo(diff, gen.Data, orig.Data)
	return floats.Dot(diff, diff) / float64(len(diff)), nil
}

// Gram returns F·Fᵀ for the (channels x height·width) view F of t.
func Gram(t *Tensor) *mat.Dense {
	f := t.Matrix()
	g := mat.NewDense(t.C, t.C, nil)
	g.Mul(f, f.T())
	return g
}

// StyleLoss is the mean squared error between the Gram matrices of gen and style.
func StyleLoss(gen, style *Tensor) (float64, error) {
	if gen.C != style.C {
		return 0, fmt.Errorf("%w: style channels %d vs %d", domain.ErrShapeMismatch, gen.C, style.C)
	}
	return gramLoss(Gram(gen), Gram(style)), nil
}

func gramLoss(g, s *mat.Dense) float64 {
	c, _ := g.Dims()
	var d mat.Dense
	d.Sub(g, s)
	n := mat.Norm(&d, 2)
	return n * n / float64(c*c)
}

// Composer weighs content and style losses over the monitored layers.
type Composer struct {
	Alpha float64
	Beta  float64
}

func NewComposer(alpha, beta float64) (*Composer, error) {
	if alpha <= 0 || beta <= 0 {
		return nil, fmt.Errorf("loss weights must be positive, got alpha=%g beta=%g", alpha, beta)
	}
	return &Composer{Alpha: alpha, Beta: beta}, nil
}

// Loss is the outcome of one evaluation. Content and Style are already weighted by alpha and beta.
type Loss struct {
	Total   float64
	Content float64
	Style   float64
	Layers  []LayerLoss
}

// LayerLoss holds the unweighted losses of one monitored layer.
type LayerLoss struct {
	Content float64
	Style   float64
}

// Target is the fixed side of the objective: content activations and style Gram matrices.
type Target struct {
	content FeatureSet
	grams   []*mat.Dense
}

func NewTarget(content, style FeatureSet) (*Target, error) {
	if len(content) != len(style) {
		return nil, fmt.Errorf("%d content layers vs %d style layers", len(content), len(style))
	}
	if len(content) == 0 {
		return nil, errors.New("empty feature set")
	}

	grams := make([]*mat.Dense, len(style))
	for i, s := range style {
		if s.C != content[i].C {
			return nil, fmt.Errorf("%w: layer %d has %d content and %d style channels",
				domain.ErrShapeMismatch, i, content[i].C, s.C)
		}
		grams[i] = Gram(s)
	}

	return &Target{content: content, grams: grams}, nil
}

// Total sums alpha·content + beta·style over all layers.
func (c *Composer) Total(gen, content, style FeatureSet) (Loss, error) {
	target, err := NewTarget(content, style)
	if err != nil {
		return Loss{}, err
	}
	loss, _, err := c.Evaluate(gen, target)
	return loss, err
}

// Evaluate returns the loss of gen against target together with its gradient for every monitored layer.
func (c *Composer) Evaluate(gen FeatureSet, target *Target) (Loss, []*Tensor, error) {
	if len(gen) != len(target.content) {
		return Loss{}, nil, fmt.Errorf("%d generated layers vs %d target layers", len(gen), len(target.content))
	}

	loss := Loss{Layers: make([]LayerLoss, len(gen))}
	grads := make([]*Tensor, len(gen))

	for i, g := range gen {
		orig := target.content[i]
		if g.Shape() != orig.Shape() {
			return Loss{}, nil, fmt.Errorf("%w: layer %d %s vs %s", domain.ErrShapeMismatch, i, g.Shape(), orig.Shape())
		}

		n := float64(g.Len())
		diff := make([]float64, g.Len())
		floats.SubTo(diff, g.Data, orig.Data)
		content := floats.Dot(diff, diff) / n

		f := g.Matrix()
		var gram mat.Dense
		gram.Mul(f, f.T())
		var d mat.Dense
		d.Sub(&gram, target.grams[i])
		norm := mat.Norm(&d, 2)
		ch := float64(g.C)
		style := norm * norm / (ch * ch)

		// d/dF ||F·Fᵀ - S||² / C² = 4·(F·Fᵀ - S)·F / C², the difference being symmetric.
		grad := NewTensor(g.C, g.H, g.W)
		gm := grad.Matrix()
		gm.Mul(&d, f)
		gm.Scale(4*c.Beta/(ch*ch), gm)
		floats.AddScaled(grad.Data, 2*c.Alpha/n, diff)

		loss.Layers[i] = LayerLoss{Content: content, Style: style}
		loss.Content += c.Alpha * content
		loss.Style += c.Beta * style
		grads[i] = grad
	}

	loss.Total = loss.Content + loss.Style
	return loss, grads, nil
}
