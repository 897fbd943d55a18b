// Package entries persists media entries and the per-user upload totals
// that admission control reads.
package entries

import (
	"context"
	"fmt"
	"time"

	"github.com/indieinfra/plume/media"
)

type State string

const (
	StateUnprocessed State = "unprocessed"
	StateProcessing  State = "processing"
	StateProcessed   State = "processed"
	StateFailed      State = "failed"
)

type Tag struct {
	Name string `json:"name"`
	Slug string `json:"slug"`
}

type Entry struct {
	ID          int64          `json:"id"`
	OwnerID     int64          `json:"owner_id"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	License     string         `json:"license"`
	Tags        []Tag          `json:"tags"`
	MediaType   string         `json:"media_type"`
	Slug        *string        `json:"slug"`
	State       State          `json:"state"`
	FileSize    int64          `json:"file_size"`
	QueuedFile  string         `json:"queued_file"`
	Metadata    media.Metadata `json:"metadata"`
	CreatedAt   time.Time      `json:"created_at"`
}

// Identifier is the URL segment that addresses the entry: its slug, or
// "id:<n>" when it has none.
func (e *Entry) Identifier() string {
	if e.Slug != nil && *e.Slug != "" {
		return *e.Slug
	}
	return fmt.Sprintf("id:%d", e.ID)
}

type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	// UploadLimit overrides the site default when >= 0.
	UploadLimit int64 `json:"upload_limit"`
	Uploaded    int64 `json:"uploaded"`
}

type Store interface {
	CreateUser(ctx context.Context, username string, uploadLimit int64, token string) (*User, error)
	User(ctx context.Context, id int64) (*User, error)
	UserByName(ctx context.Context, username string) (*User, error)
	UserByToken(ctx context.Context, token string) (*User, error)

	// Reserve inserts e in the unprocessed state and assigns its ID and
	// creation time.
	Reserve(ctx context.Context, e *Entry) error
	SlugTaken(ctx context.Context, ownerID int64, slug string, excludeID int64) (bool, error)
	// Commit is the authoritative save. In one transaction it adds
	// e.FileSize to the owner's running total only if that stays within
	// limit (negative means unlimited), re-resolves e.Slug against the
	// owner's entries and writes every field of e.
	Commit(ctx context.Context, e *Entry, limit int64) error
	// Delete removes an entry and its subscriptions, refunding its size to
	// the owner's running total.
	Delete(ctx context.Context, id int64) error

	Get(ctx context.Context, id int64) (*Entry, error)
	GetBySlug(ctx context.Context, ownerID int64, slug string) (*Entry, error)
	// Claim moves an unprocessed entry to processing; false means another
	// worker already has it or it is finished.
	Claim(ctx context.Context, id int64) (bool, error)
	Finish(ctx context.Context, id int64, state State, meta media.Metadata) error
	ListStale(ctx context.Context, before time.Time, limit int) ([]*Entry, error)

	Subscribe(ctx context.Context, userID, entryID int64) error
	Subscribed(ctx context.Context, userID, entryID int64) (bool, error)

	Close() error
}
