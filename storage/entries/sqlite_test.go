package entries

import (
	"context"
	"errors"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/indieinfra/plume/config"
	"github.com/indieinfra/plume/media"
)

func newSQLiteStore(t *testing.T) *SQLStore {
	t.Helper()

	cfg := &config.Database{Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "plume.db")}
	store, err := NewSQLStore(cfg, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("open sqlite store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	return store
}

func reserveAndCommit(t *testing.T, store *SQLStore, owner int64, title string, size, limit int64) (*Entry, error) {
	t.Helper()
	ctx := context.Background()

	e := &Entry{OwnerID: owner, Title: title, MediaType: "image", FileSize: size, QueuedFile: "queue/" + title}
	if err := store.Reserve(ctx, e); err != nil {
		t.Fatalf("reserve %q: %v", title, err)
	}

	return e, store.Commit(ctx, e, limit)
}

func TestSQLiteStore_CommitResolvesSlugCollisions(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()

	user, err := store.CreateUser(ctx, "alice", -1, "")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	first, err := reserveAndCommit(t, store, user.ID, "Beware, I exist!", 10, -1)
	if err != nil {
		t.Fatalf("commit first: %v", err)
	}
	if slugValue(first.Slug) != "beware-i-exist" {
		t.Fatalf("unexpected first slug %q", slugValue(first.Slug))
	}

	second, err := reserveAndCommit(t, store, user.ID, "Beware, I exist!", 10, -1)
	if err != nil {
		t.Fatalf("commit second: %v", err)
	}
	want := NormalizeSlug("beware i exist") + "-" + strconv.FormatInt(second.ID, 10)
	if slugValue(second.Slug) != want {
		t.Fatalf("expected %q, got %q", want, slugValue(second.Slug))
	}

	blank, err := reserveAndCommit(t, store, user.ID, "@!#?@!", 10, -1)
	if err != nil {
		t.Fatalf("commit blank: %v", err)
	}
	if blank.Slug != nil {
		t.Fatalf("expected no slug, got %q", *blank.Slug)
	}

	fetched, err := store.GetBySlug(ctx, user.ID, slugValue(second.Slug))
	if err != nil {
		t.Fatalf("get by slug: %v", err)
	}
	if fetched.ID != second.ID || fetched.QueuedFile != second.QueuedFile {
		t.Fatalf("unexpected fetched entry: %+v", fetched)
	}

	// Another owner may reuse the slug.
	bob, err := store.CreateUser(ctx, "bob", -1, "")
	if err != nil {
		t.Fatalf("create bob: %v", err)
	}
	other, err := reserveAndCommit(t, store, bob.ID, "Beware, I exist!", 10, -1)
	if err != nil {
		t.Fatalf("commit other: %v", err)
	}
	if slugValue(other.Slug) != "beware-i-exist" {
		t.Fatalf("expected slug scoped per owner, got %q", slugValue(other.Slug))
	}
}

func TestSQLiteStore_QuotaIsChargedAtomically(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()

	const mb = int64(1 << 20)

	user, err := store.CreateUser(ctx, "alice", 10*mb, "")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	kept, err := reserveAndCommit(t, store, user.ID, "first", 9*mb+mb/2, 10*mb)
	if err != nil {
		t.Fatalf("commit within quota: %v", err)
	}

	_, err = reserveAndCommit(t, store, user.ID, "second", mb, 10*mb)
	if !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("expected ErrQuotaExceeded, got %v", err)
	}

	got, err := store.User(ctx, user.ID)
	if err != nil {
		t.Fatalf("load user: %v", err)
	}
	if got.Uploaded != 9*mb+mb/2 {
		t.Fatalf("expected total unchanged by refused commit, got %d", got.Uploaded)
	}

	if err := store.Delete(ctx, kept.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	got, err = store.User(ctx, user.ID)
	if err != nil {
		t.Fatalf("load user: %v", err)
	}
	if got.Uploaded != 0 {
		t.Fatalf("expected delete to refund, got %d", got.Uploaded)
	}

	if _, err := store.Get(ctx, kept.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected deleted entry to be gone, got %v", err)
	}
}

func TestSQLiteStore_Lifecycle(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()

	user, err := store.CreateUser(ctx, "alice", -1, "s3cret")
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	byToken, err := store.UserByToken(ctx, "s3cret")
	if err != nil || byToken.ID != user.ID {
		t.Fatalf("token lookup failed: %v %+v", err, byToken)
	}
	if _, err := store.UserByToken(ctx, "wrong"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown token, got %v", err)
	}

	old := time.Unix(1700000000, 0)
	store.now = func() time.Time { return old }
	stale, err := reserveAndCommit(t, store, user.ID, "stale", 1, -1)
	if err != nil {
		t.Fatalf("commit stale: %v", err)
	}

	store.now = func() time.Time { return old.Add(48 * time.Hour) }
	fresh, err := reserveAndCommit(t, store, user.ID, "fresh", 1, -1)
	if err != nil {
		t.Fatalf("commit fresh: %v", err)
	}

	listed, err := store.ListStale(ctx, old.Add(time.Hour), 10)
	if err != nil {
		t.Fatalf("list stale: %v", err)
	}
	if len(listed) != 1 || listed[0].ID != stale.ID {
		t.Fatalf("expected only the stale entry, got %+v", listed)
	}

	ok, err := store.Claim(ctx, fresh.ID)
	if err != nil || !ok {
		t.Fatalf("expected claim to succeed: %v %v", ok, err)
	}
	ok, err = store.Claim(ctx, fresh.ID)
	if err != nil || ok {
		t.Fatalf("expected second claim to fail: %v %v", ok, err)
	}

	meta := media.Metadata{Width: 640, Height: 480, MIMEType: "image/png"}
	if err := store.Finish(ctx, fresh.ID, StateProcessed, meta); err != nil {
		t.Fatalf("finish: %v", err)
	}

	done, err := store.Get(ctx, fresh.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if done.State != StateProcessed || done.Metadata != meta {
		t.Fatalf("unexpected finished entry: %+v", done)
	}

	for i := 0; i < 2; i++ {
		if err := store.Subscribe(ctx, user.ID, fresh.ID); err != nil {
			t.Fatalf("subscribe %d: %v", i, err)
		}
	}
	subscribed, err := store.Subscribed(ctx, user.ID, fresh.ID)
	if err != nil || !subscribed {
		t.Fatalf("expected subscription: %v %v", subscribed, err)
	}

	if err := store.Delete(ctx, fresh.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	subscribed, err = store.Subscribed(ctx, user.ID, fresh.ID)
	if err != nil || subscribed {
		t.Fatalf("expected subscription removed with entry: %v %v", subscribed, err)
	}
}
