package interfaces

import "context"

const FetcherServiceID ServiceID = "Fetcher"

type IFetcherService interface {
	// Fetch writes the content of rawURL into destPath.
	Fetch(ctx context.Context, rawURL, destPath string) error
}
