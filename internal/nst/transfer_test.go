package nst

import (
	"context"
	"errors"
	"testing"

	"nstbot/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTransferer(t *testing.T, codec Codec, params Params, opts ...Option) *Transferer {
	t.Helper()

	e, err := NewExtractor(tinyNetwork(t), []int{0, 3, 5})
	require.NoError(t, err)
	c, err := NewComposer(8, 70)
	require.NoError(t, err)

	tr, err := NewTransferer(e, c, codec, params, opts...)
	require.NoError(t, err)
	return tr
}

func TestNewTransfererValidation(t *testing.T) {
	e, err := NewExtractor(tinyNetwork(t), []int{0})
	require.NoError(t, err)
	c := &Composer{Alpha: 1, Beta: 1}

	_, err = NewTransferer(nil, c, newMemoryCodec(), Params{Iterations: 1, LearningRate: 0.1})
	require.Error(t, err)
	_, err = NewTransferer(e, c, newMemoryCodec(), Params{Iterations: 0, LearningRate: 0.1})
	require.Error(t, err)
	_, err = NewTransferer(e, c, newMemoryCodec(), Params{Iterations: 1, LearningRate: 0})
	require.Error(t, err)
	_, err = NewTransferer(e, c, newMemoryCodec(), Params{Iterations: 1, LearningRate: 0.1, CheckpointEvery: -1})
	require.Error(t, err)
}

func TestRunReducesLossAndCheckpoints(t *testing.T) {
	rng := newRand()
	codec := newMemoryCodec()
	codec.images["content.png"] = randomTensor(rng, 3, 8, 8)
	codec.images["style.png"] = randomTensor(rng, 3, 8, 8)

	var progress []Progress
	tr := newTestTransferer(t, codec, Params{Iterations: 40, LearningRate: 0.01, CheckpointEvery: 10},
		WithProgress(func(p Progress) { progress = append(progress, p) }))

	job := Job{ContentPath: "content.png", StylePath: "style.png", OutputPath: "out.png"}
	out, err := tr.Run(t.Context(), job)
	require.NoError(t, err)
	assert.Equal(t, "out.png", out)

	// Four periodic checkpoints plus the final one.
	assert.Equal(t, 5, codec.saves)
	require.Len(t, progress, 5)
	assert.Equal(t, 10, progress[0].Iteration)
	assert.Equal(t, 40, progress[4].Iteration)
	assert.Equal(t, job, progress[0].Job)

	first := progress[0].Loss.Total
	last := progress[4].Loss.Total
	assert.GreaterOrEqual(t, last, 0.0)
	assert.Less(t, last, first)

	saved := codec.saved["out.png"]
	require.NotNil(t, saved)
	assert.Equal(t, Shape{C: 3, H: 8, W: 8}, saved.Shape())
	assert.NotEqual(t, codec.images["content.png"].Data, saved.Data)
}

func TestRunWithoutCheckpointsSavesOnce(t *testing.T) {
	rng := newRand()
	codec := newMemoryCodec()
	codec.images["c"] = randomTensor(rng, 3, 4, 4)
	codec.images["s"] = randomTensor(rng, 3, 4, 4)

	tr := newTestTransferer(t, codec, Params{Iterations: 3, LearningRate: 0.01})
	_, err := tr.Run(t.Context(), Job{ContentPath: "c", StylePath: "s", OutputPath: "o"})
	require.NoError(t, err)
	assert.Equal(t, 1, codec.saves)
}

func TestRunShapeMismatch(t *testing.T) {
	rng := newRand()
	codec := newMemoryCodec()
	codec.images["c"] = randomTensor(rng, 3, 8, 8)
	codec.images["s"] = randomTensor(rng, 1, 8, 8)

	tr := newTestTransferer(t, codec, Params{Iterations: 3, LearningRate: 0.01})
	_, err := tr.Run(t.Context(), Job{ContentPath: "c", StylePath: "s", OutputPath: "o"})
	require.ErrorIs(t, err, domain.ErrShapeMismatch)
	assert.Zero(t, codec.saves)
}

func TestRunLoadFailure(t *testing.T) {
	codec := newMemoryCodec()
	codec.loadErr = errors.New("corrupt jpeg")

	tr := newTestTransferer(t, codec, Params{Iterations: 3, LearningRate: 0.01})
	_, err := tr.Run(t.Context(), Job{ContentPath: "c", StylePath: "s", OutputPath: "o"})
	require.ErrorIs(t, err, domain.ErrResource)
}

func TestRunSaveFailure(t *testing.T) {
	rng := newRand()
	codec := newMemoryCodec()
	codec.images["c"] = randomTensor(rng, 3, 4, 4)
	codec.images["s"] = randomTensor(rng, 3, 4, 4)
	codec.saveErr = errors.New("read-only filesystem")

	tr := newTestTransferer(t, codec, Params{Iterations: 2, LearningRate: 0.01})
	_, err := tr.Run(t.Context(), Job{ContentPath: "c", StylePath: "s", OutputPath: "o"})
	require.ErrorIs(t, err, domain.ErrResource)
}

func TestRunCancelled(t *testing.T) {
	rng := newRand()
	codec := newMemoryCodec()
	codec.images["c"] = randomTensor(rng, 3, 4, 4)
	codec.images["s"] = randomTensor(rng, 3, 4, 4)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	tr := newTestTransferer(t, codec, Params{Iterations: 100, LearningRate: 0.01})
	_, err := tr.Run(ctx, Job{ContentPath: "c", StylePath: "s", OutputPath: "o"})
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, codec.saves)
}
