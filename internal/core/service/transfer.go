package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"nstbot/internal/core/domain"
	"nstbot/internal/core/port"
	"nstbot/internal/metrics"
	"nstbot/internal/nst"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/rs/zerolog/log"
)

const archiveTimeout = 30 * time.Second

// Enqueuer accepts jobs for background execution without blocking.
type Enqueuer interface {
	TryEnqueue(id string, run RunFunc, done DoneFunc) error
}

type StyleTransferParams struct {
	Registry   *Registry
	Queue      Enqueuer
	Transferer port.Transferer
	Allocate   domain.PathAllocator
	// Archiver is optional.
	Archiver port.Archiver
}

// StyleTransfer pairs user images into requests and runs a transfer for every completed pair.
type StyleTransfer struct {
	registry   *Registry
	queue      Enqueuer
	transferer port.Transferer
	allocate   domain.PathAllocator
	archiver   port.Archiver
}

func NewStyleTransfer(p StyleTransferParams) (*StyleTransfer, error) {
	if p.Registry == nil || p.Queue == nil || p.Transferer == nil || p.Allocate == nil {
		return nil, errors.New("style transfer needs a registry, a queue, a transferer and an allocator")
	}

	return &StyleTransfer{
		registry:   p.Registry,
		queue:      p.Queue,
		transferer: p.Transferer,
		allocate:   p.Allocate,
		archiver:   p.Archiver,
	}, nil
}

// SubmitImage assigns imagePath to the user's active request and returns the status after assignment. Once the
// style image is in place the transfer is queued and onDone is called from the worker when it ends.
func (s *StyleTransfer) SubmitImage(userID int64, imagePath string, onDone func(domain.Outcome)) (domain.Status, error) {
	l := log.With().Int64("userId", userID).Str("image", imagePath).Logger()

	var status domain.Status
	err := s.registry.Update(userID, func(req *domain.Request) error {
		var err error
		status, err = req.AssignImage(imagePath)
		if err != nil {
			return err
		}
		metrics.RecordSubmission(string(status))
		l.Info().Str("status", string(status)).Msg("image assigned")

		if status != domain.StatusStyleAssigned {
			return nil
		}

		out, err := req.BeginTransfer(s.allocate)
		if err != nil {
			return err
		}

		snap := req.Snapshot()
		job := nst.Job{ContentPath: snap.ContentPath, StylePath: snap.StylePath, OutputPath: out}

		err = s.queue.TryEnqueue(out,
			func(ctx context.Context) (string, error) {
				return s.transferer.Run(ctx, job)
			},
			func(path string, err error) {
				s.finish(userID, req, path, err, onDone)
			})
		if err != nil {
			if ferr := req.Fail(err); ferr != nil {
				l.Error().Err(ferr).Msg("could not mark request failed")
			}
			status = domain.StatusFailed
			return err
		}

		l.Info().Str("output", out).Msg("transfer queued")
		return nil
	})
	if err != nil {
		l.Warn().Err(err).Msg("image not accepted")
		return status, err
	}

	return status, nil
}

func (s *StyleTransfer) finish(userID int64, req *domain.Request, path string, err error, onDone func(domain.Outcome)) {
	l := log.With().Int64("userId", userID).Str("output", path).Logger()

	if err == nil {
		err = req.CompleteTransfer(path)
	}
	if err != nil {
		if ferr := req.Fail(err); ferr != nil {
			l.Error().Err(ferr).Msg("could not mark request failed")
		}
		l.Error().Err(err).Msg("transfer failed")
		if onDone != nil {
			onDone(domain.Outcome{UserID: userID, Err: err})
		}
		return
	}

	if s.archiver != nil {
		ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
		key, aerr := s.archiver.Archive(ctx, userID, path)
		cancel()
		if aerr != nil {
			l.Warn().Err(aerr).Msg("could not archive result")
		} else {
			l.Debug().Str("key", key).Msg("archived result")
		}
	}

	l.Info().Msg("transfer done")
	if onDone != nil {
		onDone(domain.Outcome{UserID: userID, Path: path})
	}
}

// GetResult returns the generated image of the user's latest request.
func (s *StyleTransfer) GetResult(userID int64) (string, error) {
	req, ok := s.registry.Latest(userID)
	if !ok {
		return "", fmt.Errorf("%w: no request yet", domain.ErrInvalidState)
	}

	return req.Result()
}

// DumpState renders every request of every user as a table.
func (s *StyleTransfer) DumpState() string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"user", "#", "status", "content", "style", "generated", "updated", "failure"})

	total, finished := 0, 0
	for _, u := range s.registry.Snapshot() {
		for i, r := range u.Requests {
			total++
			if r.Status.Terminal() {
				finished++
			}
			tw.AppendRow(table.Row{
				strconv.FormatInt(u.UserID, 10),
				i + 1,
				string(r.Status),
				r.ContentPath,
				r.StylePath,
				r.GeneratedPath,
				r.UpdatedAt.Format(time.DateTime),
				r.Failure,
			})
		}
	}
	tw.AppendFooter(table.Row{"", total, fmt.Sprintf("%d finished", finished)})

	return tw.Render()
}
