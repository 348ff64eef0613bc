package explorer

import (
	"errors"
	"fmt"
)

// ErrMalformedRecord marks a raw record that was dropped because its hash or
// sender was missing or invalid. It never aborts a fetch.
var ErrMalformedRecord = errors.New("malformed record")

// FetchError reports a failed page request. Any FetchError fails the whole
// fetch; no partial results are returned.
type FetchError struct {
	Stream string // StreamTransactions or StreamTokenTransfers
	Page   int
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("failed to fetch %s page %d: %v", e.Stream, e.Page, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// APIError is a non-success envelope returned by the explorer, such as an
// invalid API key or a rate limit notice.
type APIError struct {
	Action  string
	Message string
	Result  string
}

func (e *APIError) Error() string {
	if e.Result == "" {
		return fmt.Sprintf("explorer %s: %s", e.Action, e.Message)
	}
	return fmt.Sprintf("explorer %s: %s: %s", e.Action, e.Message, e.Result)
}
