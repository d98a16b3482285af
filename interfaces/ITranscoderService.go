package interfaces

import "context"

const TranscoderServiceID ServiceID = "Transcoder"

type ITranscoderService interface {
	// NeedsTranscode reports whether path has a format the decoders lack.
	NeedsTranscode(path string) bool
	// ToPNG converts input into a png at output.
	ToPNG(ctx context.Context, input, output string) error
}
