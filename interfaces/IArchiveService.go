package interfaces

import (
	"context"
	"io"
	"ywwzwb/imagearchive/models"
)

const ArchiveServiceID ServiceID = "Archive"

// IArchiveService owns the canonical images. Resolve must only ever be
// called by one goroutine at a time; the read accessors are safe anywhere.
type IArchiveService interface {
	Resolve(ctx context.Context, media models.MediaRef) (models.Image, error)

	Get(filename string) (models.Image, bool)
	List() []models.Image
	Len() int
	Path(filename string) string
	Open(filename string) (io.ReadSeekCloser, error)

	Restore(records []models.ImageRecord)
	Records() []models.ImageRecord
	Revision() uint64
}
