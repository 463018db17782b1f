package nst

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"nstbot/internal/core/domain"

	"gonum.org/v1/gonum/mat"
)

// Weights file layout, little endian:
//
//	"NSTW" | version uint32 | layer count uint32
//	per layer: kind uint8, then
//	  conv:    k uint32 | pad uint32 | gonum Dense weight | gonum VecDense bias
//	  relu:    nothing
//	  maxpool: size uint32 | stride uint32
const (
	modelMagic   = "NSTW"
	modelVersion = 1
	maxLayers    = 1 << 12
)

// ReadModelFile loads a frozen layer stack from disk.
func ReadModelFile(path string) ([]Layer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open model: %w", domain.ErrResource, err)
	}
	defer f.Close()

	layers, err := ReadModel(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("%w: read model %s: %w", domain.ErrResource, path, err)
	}
	return layers, nil
}

func ReadModel(r io.Reader) ([]Layer, error) {
	magic := make([]byte, len(modelMagic))
	if _, err := io.ReadFull(r, magic); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if string(magic) != modelMagic {
		return nil, errors.New("not a model file")
	}

	var version, count uint32
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return nil, fmt.Errorf("read version: %w", err)
	}
	if version != modelVersion {
		return nil, fmt.Errorf("unsupported model version %d", version)
	}
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, fmt.Errorf("read layer count: %w", err)
	}
	if count == 0 || count > maxLayers {
		return nil, fmt.Errorf("invalid layer count %d", count)
	}

	layers := make([]Layer, 0, count)
	for i := 0; i < int(count); i++ {
		layer, err := readLayer(r)
		if err != nil {
			return nil, fmt.Errorf("layer %d: %w", i, err)
		}
		layers = append(layers, layer)
	}

	return layers, nil
}

func readLayer(r io.Reader) (Layer, error) {
	var kind uint8
	if err := binary.Read(r, binary.LittleEndian, &kind); err != nil {
		return nil, fmt.Errorf("read kind: %w", err)
	}

	switch LayerKind(kind) {
	case KindConv:
		var geom [2]uint32
		if err := binary.Read(r, binary.LittleEndian, &geom); err != nil {
			return nil, fmt.Errorf("read conv geometry: %w", err)
		}
		var weight mat.Dense
		if _, err := weight.UnmarshalBinaryFrom(r); err != nil {
			return nil, fmt.Errorf("read conv weight: %w", err)
		}
		var bias mat.VecDense
		if _, err := bias.UnmarshalBinaryFrom(r); err != nil {
			return nil, fmt.Errorf("read conv bias: %w", err)
		}
		return NewConv2D(&weight, &bias, int(geom[0]), int(geom[1]))
	case KindReLU:
		return ReLU{}, nil
	case KindMaxPool:
		var geom [2]uint32
		if err := binary.Read(r, binary.LittleEndian, &geom); err != nil {
			return nil, fmt.Errorf("read pool geometry: %w", err)
		}
		if geom[0] == 0 || geom[1] == 0 {
			return nil, fmt.Errorf("invalid pool geometry %v", geom)
		}
		return MaxPool2D{Size: int(geom[0]), Stride: int(geom[1])}, nil
	default:
		return nil, fmt.Errorf("unknown layer kind %d", kind)
	}
}

// WriteModel serializes layers in the format ReadModel expects.
func WriteModel(w io.Writer, layers []Layer) error {
	if _, err := io.WriteString(w, modelMagic); err != nil {
		return err
	}
	header := [2]uint32{modelVersion, uint32(len(layers))}
	if err := binary.Write(w, binary.LittleEndian, header); err != nil {
		return err
	}

	for i, layer := range layers {
		if err := binary.Write(w, binary.LittleEndian, uint8(layer.Kind())); err != nil {
			return fmt.Errorf("layer %d: %w", i, err)
		}

		switch l := layer.(type) {
		case *Conv2D:
			if err := binary.Write(w, binary.LittleEndian, [2]uint32{uint32(l.K), uint32(l.Pad)}); err != nil {
				return fmt.Errorf("layer %d: %w", i, err)
			}
			if _, err := l.Weight.MarshalBinaryTo(w); err != nil {
				return fmt.Errorf("layer %d weight: %w", i, err)
			}
			if _, err := l.Bias.MarshalBinaryTo(w); err != nil {
				return fmt.Errorf("layer %d bias: %w", i, err)
			}
		case ReLU:
		case MaxPool2D:
			if err := binary.Write(w, binary.LittleEndian, [2]uint32{uint32(l.Size), uint32(l.Stride)}); err != nil {
				return fmt.Errorf("layer %d: %w", i, err)
			}
		default:
			return fmt.Errorf("layer %d: cannot serialize %T", i, layer)
		}
	}

	return nil
}
