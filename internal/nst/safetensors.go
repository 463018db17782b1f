package nst

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
)

const maxSafetensorsHeader = 100 << 20

// NamedTensor is one entry of a safetensors file, widened to float64 and kept in row-major order.
type NamedTensor struct {
	Shape []int
	Data  []float64
}

type safetensorsEntry struct {
	DType       string   `json:"dtype"`
	Shape       []int    `json:"shape"`
	DataOffsets [2]int64 `json:"data_offsets"`
}

// ReadSafetensors decodes a safetensors stream: a little endian header length, a JSON header and the raw
// tensor bytes. F32, F64 and BF16 tensors are supported.
func ReadSafetensors(r io.Reader) (map[string]NamedTensor, error) {
	var size uint64
	if err := binary.Read(r, binary.LittleEndian, &size); err != nil {
		return nil, fmt.Errorf("read header size: %w", err)
	}
	if size == 0 || size > maxSafetensorsHeader {
		return nil, fmt.Errorf("invalid header size %d", size)
	}

	header := make([]byte, size)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	var entries map[string]json.RawMessage
	if err := json.Unmarshal(header, &entries); err != nil {
		return nil, fmt.Errorf("decode header: %w", err)
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read tensor data: %w", err)
	}

	tensors := make(map[string]NamedTensor, len(entries))
	for name, raw := range entries {
		if name == "__metadata__" {
			continue
		}

		var e safetensorsEntry
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, fmt.Errorf("decode entry %s: %w", name, err)
		}

		begin, end := e.DataOffsets[0], e.DataOffsets[1]
		if begin < 0 || end < begin || end > int64(len(data)) {
			return nil, fmt.Errorf("entry %s: offsets %v outside of %d data bytes", name, e.DataOffsets, len(data))
		}

		values, err := decodeFloats(e.DType, data[begin:end])
		if err != nil {
			return nil, fmt.Errorf("entry %s: %w", name, err)
		}

		count := 1
		for _, d := range e.Shape {
			count *= d
		}
		if count != len(values) {
			return nil, fmt.Errorf("entry %s: shape %v needs %d values, got %d", name, e.Shape, count, len(values))
		}

		tensors[name] = NamedTensor{Shape: e.Shape, Data: values}
	}

	return tensors, nil
}

func decodeFloats(dtype string, b []byte) ([]float64, error) {
	var width int
	switch dtype {
	case "F64":
		width = 8
	case "F32":
		width = 4
	case "BF16":
		width = 2
	default:
		return nil, fmt.Errorf("unsupported dtype %q", dtype)
	}
	if len(b)%width != 0 {
		return nil, errors.New("data length is not a multiple of the element size")
	}

	out := make([]float64, len(b)/width)
	for i := range out {
		chunk := b[i*width : (i+1)*width]
		switch dtype {
		case "F64":
			out[i] = math.Float64frombits(binary.LittleEndian.Uint64(chunk))
		case "F32":
			out[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(chunk)))
		case "BF16":
			out[i] = float64(math.Float32frombits(uint32(binary.LittleEndian.Uint16(chunk)) << 16))
		}
	}

	return out, nil
}
