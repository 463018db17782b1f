package main

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"

	"nstbot/internal/nst"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeFirstConv stores only features.0, which is all a conversion with --upto 0 reads.
func writeFirstConv(t *testing.T) string {
	t.Helper()

	weights := make([]float32, 64*3*3*3)
	for i := range weights {
		weights[i] = float32(i%7) * 0.1
	}
	bias := make([]float32, 64)
	for i := range bias {
		bias[i] = 0.5
	}

	var data bytes.Buffer
	require.NoError(t, binary.Write(&data, binary.LittleEndian, weights))
	require.NoError(t, binary.Write(&data, binary.LittleEndian, bias))

	header, err := json.Marshal(map[string]any{
		"__metadata__":      map[string]string{"format": "pt"},
		"features.0.weight": map[string]any{"dtype": "F32", "shape": []int{64, 3, 3, 3}, "data_offsets": []int{0, 4 * len(weights)}},
		"features.0.bias":   map[string]any{"dtype": "F32", "shape": []int{64}, "data_offsets": []int{4 * len(weights), data.Len()}},
	})
	require.NoError(t, err)

	var file bytes.Buffer
	require.NoError(t, binary.Write(&file, binary.LittleEndian, uint64(len(header))))
	file.Write(header)
	file.Write(data.Bytes())

	path := filepath.Join(t.TempDir(), "vgg19.safetensors")
	require.NoError(t, os.WriteFile(path, file.Bytes(), 0o600))
	return path
}

func runConvert(t *testing.T, args ...string) (string, error) {
	t.Helper()

	cmd := newRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)

	err := cmd.Execute()
	return out.String(), err
}

func TestConvertWritesModel(t *testing.T) {
	in := writeFirstConv(t)
	out := filepath.Join(t.TempDir(), "model", "vgg19.nstw")

	tests := []struct {
		name      string
		normalize string
		wantBias  float64
	}{
		{name: "raw weights", normalize: "--normalize=false", wantBias: 0.5},
		{name: "normalization folded", normalize: "--normalize=true"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			summary, err := runConvert(t, "--in", in, "--out", out, "--upto", "0", tc.normalize)
			require.NoError(t, err)
			assert.Contains(t, summary, "conv")
			assert.Contains(t, summary, "3x3")

			layers, err := nst.ReadModelFile(out)
			require.NoError(t, err)
			require.Len(t, layers, 1)

			conv, ok := layers[0].(*nst.Conv2D)
			require.True(t, ok)
			assert.Equal(t, 3, conv.InC)
			assert.Equal(t, 64, conv.OutC)

			if tc.wantBias != 0 {
				assert.InDelta(t, tc.wantBias, conv.Bias.AtVec(0), 1e-12)
				return
			}
			assert.Less(t, conv.Bias.AtVec(0), 0.5, "folding subtracts the scaled mean")
			assert.False(t, math.IsNaN(conv.Weight.At(0, 0)))
		})
	}
}

func TestConvertErrors(t *testing.T) {
	in := writeFirstConv(t)
	out := filepath.Join(t.TempDir(), "vgg19.nstw")

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{name: "no input", args: []string{"--out", out}, wantErr: `required flag(s) "in" not set`},
		{name: "missing file", args: []string{"--in", filepath.Join(t.TempDir(), "nope"), "--out", out}, wantErr: "open export"},
		{name: "layers not in export", args: []string{"--in", in, "--out", out, "--upto", "2"}, wantErr: "missing tensor features.2.weight"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := runConvert(t, tc.args...)
			require.ErrorContains(t, err, tc.wantErr)
		})
	}

	_, err := os.Stat(out)
	assert.True(t, os.IsNotExist(err))
}
