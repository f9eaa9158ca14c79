// Package history keeps the recently-played list for each identity, using the
// remote history service for signed-in identities and the local store for
// guests and as a fallback.
package history

import (
	"context"

	"github.com/tessro/encore/internal/core"
)

// Kind classifies the outcome of a history operation.
type Kind int

const (
	// Ok means the authoritative backend served the call.
	Ok Kind = iota
	// Fallback means the remote failed and the local partition served the call.
	Fallback
	// Fail means no backend could serve the call. The view is left unchanged.
	Fail
)

func (k Kind) String() string {
	switch k {
	case Ok:
		return "ok"
	case Fallback:
		return "fallback"
	case Fail:
		return "fail"
	default:
		return "unknown"
	}
}

// Result is returned by every engine operation. Records is the identity's
// history after the operation, most recent first.
type Result struct {
	Kind    Kind
	Records []core.HistoryRecord
	Reason  error
	Backend core.Backend
}

// Err returns Reason for failed results and nil otherwise. Fallbacks are not
// errors.
func (r Result) Err() error {
	if r.Kind == Fail {
		return r.Reason
	}
	return nil
}

func okResult(records []core.HistoryRecord, backend core.Backend) Result {
	return Result{Kind: Ok, Records: records, Backend: backend}
}

func fallbackResult(records []core.HistoryRecord, reason error) Result {
	return Result{Kind: Fallback, Records: records, Reason: reason, Backend: core.BackendLocal}
}

func failResult(records []core.HistoryRecord, reason error, backend core.Backend) Result {
	return Result{Kind: Fail, Records: records, Reason: reason, Backend: backend}
}

// Remote is the remote history service. A nil Remote makes every signed-in
// call fall back to the local store.
type Remote interface {
	Fetch(ctx context.Context, userID string) ([]core.HistoryRecord, error)
	Upsert(ctx context.Context, userID string, rec core.HistoryRecord) error
	Delete(ctx context.Context, userID, filename string) error
}

// View is a snapshot of the in-memory history and the identity it belongs to.
type View struct {
	Identity core.Identity
	Records  []core.HistoryRecord
}
