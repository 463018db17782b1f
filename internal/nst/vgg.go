package nst

import (
	"fmt"
	"slices"

	"gonum.org/v1/gonum/mat"
)

// VGG19Features is the layout of torchvision's vgg19().features: output channels of each 3x3 convolution, 0 for
// a 2x2 max pool. Every convolution is followed by a ReLU.
var VGG19Features = []int{
	64, 64, 0,
	128, 128, 0,
	256, 256, 256, 256, 0,
	512, 512, 512, 512, 0,
	512, 512, 512, 512, 0,
}

// Normalization is the per-channel input standardization a network was trained with.
type Normalization struct {
	Mean []float64
	Std  []float64
}

// ImageNet is the standardization torchvision classifiers expect.
var ImageNet = Normalization{
	Mean: []float64{0.485, 0.456, 0.406},
	Std:  []float64{0.229, 0.224, 0.225},
}

// BuildSequential assembles a conv/relu/pool stack from a torchvision state dict. Layer indices follow the
// torchvision module indices, so the conv at index i is read from "<prefix>.<i>.weight" and "<prefix>.<i>.bias"
// and monitored layer indices carry over unchanged. Layers after index upto are left out.
//
// When norm is set it is folded into the first convolution, so the network takes [0,1] pixels directly.
// Border pixels differ slightly from an explicitly standardized input, since zero padding is applied before
// the fold.
func BuildSequential(weights map[string]NamedTensor, prefix string, cfg []int, inC, upto int,
	norm *Normalization) ([]Layer, error) {
	if upto < 0 {
		return nil, fmt.Errorf("layer limit must not be negative, got %d", upto)
	}

	var layers []Layer
	idx := 0
	first := true

	for _, outC := range cfg {
		if idx > upto {
			break
		}

		if outC == 0 {
			layers = append(layers, MaxPool2D{Size: 2, Stride: 2})
			idx++
			continue
		}

		conv, err := convFromState(weights, fmt.Sprintf("%s.%d", prefix, idx), inC, outC)
		if err != nil {
			return nil, err
		}
		if first && norm != nil {
			if err := foldNormalization(conv, *norm); err != nil {
				return nil, err
			}
		}
		first = false

		layers = append(layers, conv)
		idx++
		if idx <= upto {
			layers = append(layers, ReLU{})
		}
		idx++
		inC = outC
	}

	if len(layers) <= upto {
		return nil, fmt.Errorf("network has %d layers, cannot keep up to index %d", len(layers), upto)
	}

	return layers, nil
}

func convFromState(weights map[string]NamedTensor, name string, inC, outC int) (*Conv2D, error) {
	w, ok := weights[name+".weight"]
	if !ok {
		return nil, fmt.Errorf("missing tensor %s.weight", name)
	}
	b, ok := weights[name+".bias"]
	if !ok {
		return nil, fmt.Errorf("missing tensor %s.bias", name)
	}

	if !slices.Equal(w.Shape, []int{outC, inC, 3, 3}) {
		return nil, fmt.Errorf("%s.weight has shape %v, want [%d %d 3 3]", name, w.Shape, outC, inC)
	}
	if !slices.Equal(b.Shape, []int{outC}) {
		return nil, fmt.Errorf("%s.bias has shape %v, want [%d]", name, b.Shape, outC)
	}

	// [out, in, ky, kx] row-major is already one row per output channel in (in, ky, kx) order.
	weight := mat.NewDense(outC, inC*9, slices.Clone(w.Data))
	bias := mat.NewVecDense(outC, slices.Clone(b.Data))

	return NewConv2D(weight, bias, 3, 1)
}

// foldNormalization rewrites conv so that conv(x) equals the original conv applied to (x-mean)/std.
func foldNormalization(conv *Conv2D, norm Normalization) error {
	if len(norm.Mean) != conv.InC || len(norm.Std) != conv.InC {
		return fmt.Errorf("normalization has %d/%d channels, first conv expects %d",
			len(norm.Mean), len(norm.Std), conv.InC)
	}

	kk := conv.K * conv.K
	for o := 0; o < conv.OutC; o++ {
		shift := 0.0
		for c := 0; c < conv.InC; c++ {
			if norm.Std[c] <= 0 {
				return fmt.Errorf("normalization std of channel %d must be positive", c)
			}
			for k := 0; k < kk; k++ {
				col := c*kk + k
				w := conv.Weight.At(o, col) / norm.Std[c]
				conv.Weight.Set(o, col, w)
				shift += w * norm.Mean[c]
			}
		}
		conv.Bias.SetVec(o, conv.Bias.AtVec(o)-shift)
	}

	return nil
}
