// Package session persists intelligence sessions with optimistic
// concurrency. Every update carries the version the writer last read;
// a stale version is rejected so concurrent pipeline stages cannot
// silently overwrite each other's data.
package session

import (
	"context"
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/sells-group/company-intel/internal/model"
)

// ErrNotFound is returned when no session exists for the given ID.
var ErrNotFound = eris.New("session: not found")

// ErrVersionConflict is returned when an update carries a stale version.
var ErrVersionConflict = eris.New("session: version conflict")

// Update describes the fields to change. Nil fields are left untouched;
// a non-nil Data replaces the blob wholesale (use MergeData to patch
// individual keys).
type Update struct {
	Name   *string
	Status *model.SessionStatus
	Phase  *int
	Data   json.RawMessage
}

// Store is the session persistence interface.
type Store interface {
	Create(ctx context.Context, name, domain string) (*model.Session, error)
	Get(ctx context.Context, id string) (*model.Session, error)
	FindByDomain(ctx context.Context, domain string) ([]model.Session, error)
	// Update applies the change only if the stored version equals
	// expectedVersion, then bumps the version. Returns the new state.
	Update(ctx context.Context, id string, u Update, expectedVersion int64) (*model.Session, error)
	Migrate(ctx context.Context) error
	Close() error
}

const mergeDataRetries = 3

// MergeData patches individual keys into the session's data blob without
// disturbing unrelated keys, retrying on version conflicts. Keys in the
// patch overwrite existing keys of the same name.
func MergeData(ctx context.Context, s Store, id string, patch map[string]json.RawMessage) (*model.Session, error) {
	var lastErr error
	for attempt := 0; attempt < mergeDataRetries; attempt++ {
		sess, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}

		data, err := sess.DataMap()
		if err != nil {
			return nil, eris.Wrap(err, "session: decoding data blob")
		}
		for k, v := range patch {
			data[k] = v
		}
		blob, err := json.Marshal(data)
		if err != nil {
			return nil, eris.Wrap(err, "session: encoding data blob")
		}

		updated, err := s.Update(ctx, id, Update{Data: blob}, sess.Version)
		if err == nil {
			return updated, nil
		}
		if !eris.Is(err, ErrVersionConflict) {
			return nil, err
		}
		lastErr = err
	}
	return nil, eris.Wrap(lastErr, "session: merge data retries exhausted")
}
