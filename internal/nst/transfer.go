package nst

import (
	"context"
	"errors"
	"fmt"
	"time"

	"nstbot/internal/core/domain"

	"github.com/rs/zerolog/log"
)

// Codec turns image files into preprocessed tensors and back.
type Codec interface {
	Load(path string) (*Tensor, error)
	Save(t *Tensor, path string) error
}

// Job names the inputs and the output of one transfer.
type Job struct {
	ContentPath string
	StylePath   string
	OutputPath  string
}

type Params struct {
	Iterations      int
	LearningRate    float64
	CheckpointEvery int
}

func (p Params) validate() error {
	if p.Iterations <= 0 {
		return fmt.Errorf("iterations must be positive, got %d", p.Iterations)
	}
	if p.LearningRate <= 0 {
		return fmt.Errorf("learning rate must be positive, got %g", p.LearningRate)
	}
	if p.CheckpointEvery < 0 {
		return fmt.Errorf("checkpoint interval must not be negative, got %d", p.CheckpointEvery)
	}
	return nil
}

// Progress is reported after every checkpoint.
type Progress struct {
	Job       Job
	Iteration int
	Loss      Loss
}

type Option func(*Transferer)

// WithProgress registers a callback invoked at every checkpoint.
func WithProgress(fn func(Progress)) Option {
	return func(t *Transferer) {
		t.progress = fn
	}
}

// Transferer runs the optimization loop. It is safe for concurrent use: the extractor is read-only and all
// per-run state lives on the stack of Run.
type Transferer struct {
	extractor *Extractor
	composer  *Composer
	codec     Codec
	params    Params
	progress  func(Progress)
}

func NewTransferer(extractor *Extractor, composer *Composer, codec Codec, params Params, opts ...Option) (*Transferer, error) {
	if extractor == nil || composer == nil || codec == nil {
		return nil, errors.New("transferer needs an extractor, a composer and a codec")
	}
	if err := params.validate(); err != nil {
		return nil, err
	}

	t := &Transferer{
		extractor: extractor,
		composer:  composer,
		codec:     codec,
		params:    params,
	}
	for _, opt := range opts {
		opt(t)
	}

	return t, nil
}

// Run optimizes a copy of the content image towards the style image and writes it to job.OutputPath.
func (t *Transferer) Run(ctx context.Context, job Job) (string, error) {
	l := log.With().
		Str("content", job.ContentPath).
		Str("style", job.StylePath).
		Str("output", job.OutputPath).
		Logger()

	content, err := t.codec.Load(job.ContentPath)
	if err != nil {
		return "", fmt.Errorf("%w: load content image: %w", domain.ErrResource, err)
	}
	style, err := t.codec.Load(job.StylePath)
	if err != nil {
		return "", fmt.Errorf("%w: load style image: %w", domain.ErrResource, err)
	}
	if content.Shape() != style.Shape() {
		return "", fmt.Errorf("%w: content is %s, style is %s", domain.ErrShapeMismatch, content.Shape(), style.Shape())
	}

	contentFeatures, err := t.extractor.Extract(content)
	if err != nil {
		return "", fmt.Errorf("extract content features: %w", err)
	}
	styleFeatures, err := t.extractor.Extract(style)
	if err != nil {
		return "", fmt.Errorf("extract style features: %w", err)
	}
	target, err := NewTarget(contentFeatures, styleFeatures)
	if err != nil {
		return "", err
	}

	generated := content.Clone()
	opt, err := NewAdam(generated.Len(), t.params.LearningRate)
	if err != nil {
		return "", err
	}

	l.Info().Int("iterations", t.params.Iterations).Str("shape", content.Shape().String()).Msg("starting transfer")
	start := time.Now()

	var loss Loss
	for i := 1; i <= t.params.Iterations; i++ {
		if err := ctx.Err(); err != nil {
			return "", fmt.Errorf("transfer aborted at iteration %d: %w", i, err)
		}

		loss, err = t.step(generated, target, opt)
		if err != nil {
			return "", fmt.Errorf("iteration %d: %w", i, err)
		}

		if t.params.CheckpointEvery > 0 && i%t.params.CheckpointEvery == 0 {
			if err := t.checkpoint(generated, job, i, loss); err != nil {
				return "", err
			}
			l.Debug().Int("iteration", i).Float64("loss", loss.Total).
				Float64("content", loss.Content).Float64("style", loss.Style).Msg("checkpoint")
		}
	}

	if err := t.checkpoint(generated, job, t.params.Iterations, loss); err != nil {
		return "", err
	}

	l.Info().Dur("took", time.Since(start)).Float64("loss", loss.Total).Msg("transfer finished")

	return job.OutputPath, nil
}

func (t *Transferer) step(generated *Tensor, target *Target, opt *Adam) (Loss, error) {
	trace, err := t.extractor.Trace(generated)
	if err != nil {
		return Loss{}, err
	}

	loss, grads, err := t.composer.Evaluate(trace.Features(), target)
	if err != nil {
		return Loss{}, err
	}

	grad, err := t.extractor.Backward(trace, grads)
	if err != nil {
		return Loss{}, err
	}

	return loss, opt.Step(generated.Data, grad.Data)
}

func (t *Transferer) checkpoint(generated *Tensor, job Job, iteration int, loss Loss) error {
	if err := t.codec.Save(generated, job.OutputPath); err != nil {
		return fmt.Errorf("%w: save checkpoint: %w", domain.ErrResource, err)
	}
	if t.progress != nil {
		t.progress(Progress{Job: job, Iteration: iteration, Loss: loss})
	}
	return nil
}
