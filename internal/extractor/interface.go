package extractor

import "context"

// Backend is a remote reader service that fetches and extracts a URL in one
// call and returns lightweight markup.
type Backend interface {
	// Fetch returns the service's text for url. Errors are never absorbed.
	Fetch(ctx context.Context, url string) (string, error)
}
