package port

import (
	"context"

	"nstbot/internal/core/domain"
	"nstbot/internal/nst"
)

// Transferer runs one style transfer job to completion and returns the generated image path.
type Transferer interface {
	Run(ctx context.Context, job nst.Job) (string, error)
}

type ImageStore interface {
	// Fetch downloads a remote image to local storage and returns its path.
	Fetch(ctx context.Context, url string) (string, error)
	// Read returns the content of a locally stored image.
	Read(path string) ([]byte, error)
}

// Archiver copies a finished result to long-term storage and returns its object key.
type Archiver interface {
	Archive(ctx context.Context, userID int64, path string) (string, error)
}

type StyleTransfer interface {
	// SubmitImage assigns an image to the user's active request and starts the transfer once both images are
	// present. onDone is invoked from a worker when a started transfer ends.
	SubmitImage(userID int64, imagePath string, onDone func(domain.Outcome)) (domain.Status, error)
	// GetResult returns the generated image path of the user's latest request if it is done.
	GetResult(userID int64) (string, error)
	// DumpState renders every user's requests as a table.
	DumpState() string
}

type PoolStatter interface {
	Stats() domain.PoolStats
}
