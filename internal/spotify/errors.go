package spotify

import (
	"errors"
	"fmt"

	"github.com/zmb3/spotify/v2"
)

// UpstreamError reports a non-2xx response from the Spotify Web API,
// carrying the HTTP status and the upstream error body.
type UpstreamError struct {
	Status int
	Body   string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("spotify API error: status %d: %s", e.Status, e.Body)
}

// wrapErr converts library errors into UpstreamError where the upstream
// status is known, otherwise wraps with the operation name. No retries
// happen at this layer; the caller decides tolerance.
func wrapErr(op string, err error) error {
	var apiErr spotify.Error
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%s: %w", op, &UpstreamError{Status: apiErr.Status, Body: apiErr.Message})
	}
	return fmt.Errorf("%s: %w", op, err)
}
