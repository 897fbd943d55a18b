package common

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/indieinfra/plume/storage/entries"
)

type EntryFinder interface {
	UserByName(ctx context.Context, username string) (*entries.User, error)
	Get(ctx context.Context, id int64) (*entries.Entry, error)
	GetBySlug(ctx context.Context, ownerID int64, slug string) (*entries.Entry, error)
}

// EntryPath is the site-relative address of e under owner.
func EntryPath(owner string, e *entries.Entry) string {
	return fmt.Sprintf("/u/%s/m/%s/", owner, e.Identifier())
}

// ResolveEntry finds the entry addressed by a "/u/{user}/m/{media}/" path,
// where media is a slug or "id:<n>". Anything that does not resolve to an
// entry owned by user is entries.ErrNotFound.
func ResolveEntry(ctx context.Context, store EntryFinder, username, media string) (*entries.User, *entries.Entry, error) {
	user, err := store.UserByName(ctx, username)
	if err != nil {
		return nil, nil, err
	}

	var e *entries.Entry
	if raw, ok := strings.CutPrefix(media, "id:"); ok {
		id, perr := strconv.ParseInt(raw, 10, 64)
		if perr != nil {
			return nil, nil, fmt.Errorf("entry %q: %w", media, entries.ErrNotFound)
		}
		e, err = store.Get(ctx, id)
	} else {
		e, err = store.GetBySlug(ctx, user.ID, media)
	}
	if err != nil {
		return nil, nil, err
	}

	if e.OwnerID != user.ID {
		return nil, nil, fmt.Errorf("entry %q of %s: %w", media, username, entries.ErrNotFound)
	}

	return user, e, nil
}

// SplitEntryPath extracts user and media from "/u/{user}/m/{media}/".
func SplitEntryPath(path string) (user, media string, ok bool) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 4 || parts[0] != "u" || parts[2] != "m" || parts[1] == "" || parts[3] == "" {
		return "", "", false
	}
	return parts[1], parts[3], true
}
