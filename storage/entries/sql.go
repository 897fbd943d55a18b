package entries

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/indieinfra/plume/config"
	"github.com/indieinfra/plume/media"
	storageutil "github.com/indieinfra/plume/storage/util"
)

const entryColumns = "id, owner_id, title, description, license, tags, media_type, slug, state, file_size, queued_file, metadata, created_at"

type SQLStore struct {
	db            *sql.DB
	d             dialect
	users         string
	entries       string
	subscriptions string
	now           func() time.Time
	log           *zap.Logger
}

func NewSQLStore(cfg *config.Database, log *zap.Logger) (*SQLStore, error) {
	store, err := newSQLStoreWithDB(cfg, nil, log)
	if err != nil {
		return nil, err
	}

	dsn := cfg.DSN
	if store.d.driverName == "mysql" {
		// Commit and Finish read RowsAffected as "row exists", which MySQL
		// only reports when asked for found rather than changed rows.
		mc, err := mysql.ParseDSN(dsn)
		if err != nil {
			return nil, fmt.Errorf("parse mysql dsn: %w", err)
		}
		mc.ClientFoundRows = true
		dsn = mc.FormatDSN()
	}

	db, err := sql.Open(store.d.driverName, dsn)
	if err != nil {
		return nil, err
	}

	// SQLite allows one writer; a single connection keeps transactions
	// from tripping over SQLITE_BUSY.
	if store.d.driverName == "sqlite" {
		db.SetMaxOpenConns(1)
	}

	store.db = db

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := store.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

func newSQLStoreWithDB(cfg *config.Database, db *sql.DB, log *zap.Logger) (*SQLStore, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config is nil")
	}

	d, err := resolveDialect(cfg.Driver)
	if err != nil {
		return nil, err
	}

	prefix := "plume"
	if cfg.TablePrefix != nil {
		prefix = *cfg.TablePrefix
	}

	if log == nil {
		log = zap.NewNop()
	}

	return &SQLStore{
		db:            db,
		d:             d,
		users:         storageutil.DeriveTableName(prefix, "users"),
		entries:       storageutil.DeriveTableName(prefix, "entries"),
		subscriptions: storageutil.DeriveTableName(prefix, "subscriptions"),
		now:           time.Now,
		log:           log,
	}, nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) initSchema(ctx context.Context) error {
	for _, q := range s.schemaQueries() {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

func (s *SQLStore) schemaQueries() []string {
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
%s,
username VARCHAR(255) NOT NULL UNIQUE,
token_hash VARCHAR(64) UNIQUE,
upload_limit BIGINT NOT NULL DEFAULT -1,
uploaded BIGINT NOT NULL DEFAULT 0,
created_at BIGINT NOT NULL
)`, s.users, s.d.idColumn),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
%s,
owner_id BIGINT NOT NULL,
title VARCHAR(500) NOT NULL,
description TEXT NOT NULL,
license VARCHAR(255) NOT NULL,
tags TEXT NOT NULL,
media_type VARCHAR(32) NOT NULL,
slug VARCHAR(255) NULL,
state VARCHAR(16) NOT NULL,
file_size BIGINT NOT NULL DEFAULT 0,
queued_file VARCHAR(1024) NOT NULL,
metadata TEXT NOT NULL,
created_at BIGINT NOT NULL,
UNIQUE (owner_id, slug)
)`, s.entries, s.d.idColumn),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
%s,
entry_id BIGINT NOT NULL,
user_id BIGINT NOT NULL,
notify BOOLEAN NOT NULL,
send_email BOOLEAN NOT NULL,
created_at BIGINT NOT NULL,
UNIQUE (entry_id, user_id)
)`, s.subscriptions, s.d.idColumn),
	}
}

// HashToken is how API tokens are stored and looked up.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func (s *SQLStore) CreateUser(ctx context.Context, username string, uploadLimit int64, token string) (*User, error) {
	var tokenHash any
	if token != "" {
		tokenHash = HashToken(token)
	}

	id, err := s.insert(ctx, s.db, s.insertUserQuery(), username, tokenHash, uploadLimit, int64(0), s.now().Unix())
	if err != nil {
		return nil, fmt.Errorf("create user %q: %w", username, err)
	}

	return &User{ID: id, Username: username, UploadLimit: uploadLimit}, nil
}

func (s *SQLStore) User(ctx context.Context, id int64) (*User, error) {
	return s.getUser(ctx, "id", id)
}

func (s *SQLStore) UserByName(ctx context.Context, username string) (*User, error) {
	return s.getUser(ctx, "username", username)
}

func (s *SQLStore) UserByToken(ctx context.Context, token string) (*User, error) {
	if token == "" {
		return nil, ErrNotFound
	}
	return s.getUser(ctx, "token_hash", HashToken(token))
}

func (s *SQLStore) getUser(ctx context.Context, column string, value any) (*User, error) {
	var u User
	err := s.db.QueryRowContext(ctx, s.selectUserQuery(column), value).Scan(&u.ID, &u.Username, &u.UploadLimit, &u.Uploaded)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (s *SQLStore) Reserve(ctx context.Context, e *Entry) error {
	tags, meta, err := encodeEntry(e)
	if err != nil {
		return err
	}

	e.State = StateUnprocessed
	e.CreatedAt = s.now().UTC().Truncate(time.Second)

	id, err := s.insert(ctx, s.db, s.reserveQuery(),
		e.OwnerID, e.Title, e.Description, e.License, tags, e.MediaType,
		nullableSlug(e.Slug), string(e.State), e.FileSize, e.QueuedFile, meta, e.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("reserve entry: %w", err)
	}

	e.ID = id
	return nil
}

func (s *SQLStore) SlugTaken(ctx context.Context, ownerID int64, slug string, excludeID int64) (bool, error) {
	return s.slugTakenIn(ctx, s.db, ownerID, slug, excludeID)
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *SQLStore) slugTakenIn(ctx context.Context, q queryer, ownerID int64, slug string, excludeID int64) (bool, error) {
	var found int
	err := q.QueryRowContext(ctx, s.slugTakenQuery(), ownerID, slug, excludeID).Scan(&found)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check slug existence: %w", err)
	}
	return true, nil
}

func (s *SQLStore) Commit(ctx context.Context, e *Entry, limit int64) error {
	tags, meta, err := encodeEntry(e)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer s.rollback(tx, "Commit")

	// Charging the owner first takes their row lock, which serialises
	// concurrent commits by the same owner through slug resolution below.
	if err := s.chargeInTx(ctx, tx, e.OwnerID, e.FileSize, limit); err != nil {
		return err
	}

	requested := ""
	if e.Slug != nil {
		requested = *e.Slug
	}

	slug, err := GenerateSlug(e.Title, requested, e.ID, func(candidate string) (bool, error) {
		return s.slugTakenIn(ctx, tx, e.OwnerID, candidate, e.ID)
	})
	if err != nil {
		return err
	}

	res, err := tx.ExecContext(ctx, s.commitEntryQuery(),
		e.Title, e.Description, e.License, tags, e.MediaType, nullableSlug(slug),
		string(e.State), e.FileSize, e.QueuedFile, meta, e.ID,
	)
	if err != nil {
		return fmt.Errorf("save entry %d: %w", e.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("save entry %d: %w", e.ID, ErrNotFound)
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	e.Slug = slug
	return nil
}

// chargeInTx adds size to the owner's running total with a single
// conditional UPDATE, so the check and the increment cannot interleave with
// another upload.
func (s *SQLStore) chargeInTx(ctx context.Context, tx *sql.Tx, ownerID, size, limit int64) error {
	query, args := s.chargeUnlimitedQuery(), []any{size, ownerID}
	if limit >= 0 {
		query, args = s.chargeLimitedQuery(), []any{size, ownerID, size, limit}
	}

	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update upload total: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	var found int
	if err := tx.QueryRowContext(ctx, s.userExistsQuery(), ownerID).Scan(&found); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("user %d: %w", ownerID, ErrNotFound)
		}
		return err
	}

	return ErrQuotaExceeded
}

func (s *SQLStore) Delete(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer s.rollback(tx, "Delete")

	var ownerID, size int64
	if err := tx.QueryRowContext(ctx, s.entryChargeQuery(), id).Scan(&ownerID, &size); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}

	if _, err := tx.ExecContext(ctx, s.deleteSubscriptionsQuery(), id); err != nil {
		return err
	}

	if size > 0 {
		if _, err := tx.ExecContext(ctx, s.refundQuery(), size, ownerID, size); err != nil {
			return err
		}
	}

	if _, err := tx.ExecContext(ctx, s.deleteEntryQuery(), id); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *SQLStore) Get(ctx context.Context, id int64) (*Entry, error) {
	return scanEntry(s.db.QueryRowContext(ctx, s.selectEntryByIDQuery(), id))
}

func (s *SQLStore) GetBySlug(ctx context.Context, ownerID int64, slug string) (*Entry, error) {
	return scanEntry(s.db.QueryRowContext(ctx, s.selectEntryBySlugQuery(), ownerID, slug))
}

func (s *SQLStore) Claim(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.transitionQuery(), string(StateProcessing), id, string(StateUnprocessed))
	if err != nil {
		return false, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *SQLStore) Finish(ctx context.Context, id int64, state State, meta media.Metadata) error {
	raw, err := json.Marshal(meta)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, s.finishQuery(), string(state), string(raw), id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLStore) ListStale(ctx context.Context, before time.Time, limit int) ([]*Entry, error) {
	rows, err := s.db.QueryContext(ctx, s.staleQuery(), string(StateUnprocessed), before.Unix(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}

	return out, rows.Err()
}

func (s *SQLStore) Subscribe(ctx context.Context, userID, entryID int64) error {
	subscribed, err := s.Subscribed(ctx, userID, entryID)
	if err != nil || subscribed {
		return err
	}

	_, err = s.db.ExecContext(ctx, s.subscribeQuery(), entryID, userID, true, false, s.now().Unix())
	return err
}

func (s *SQLStore) Subscribed(ctx context.Context, userID, entryID int64) (bool, error) {
	var found int
	err := s.db.QueryRowContext(ctx, s.subscribedQuery(), entryID, userID).Scan(&found)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *SQLStore) insert(ctx context.Context, q queryer, query string, args ...any) (int64, error) {
	if s.d.returning {
		var id int64
		if err := q.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
			return 0, err
		}
		return id, nil
	}

	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *SQLStore) rollback(tx *sql.Tx, op string) {
	// Rollback is safe to call after Commit; it will return sql.ErrTxDone
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		s.log.Warn("unexpected error during transaction rollback", zap.String("op", op), zap.Error(err))
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*Entry, error) {
	var (
		e         Entry
		tags      string
		slug      sql.NullString
		state     string
		meta      string
		createdAt int64
	)

	err := row.Scan(&e.ID, &e.OwnerID, &e.Title, &e.Description, &e.License, &tags, &e.MediaType,
		&slug, &state, &e.FileSize, &e.QueuedFile, &meta, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if err := json.Unmarshal([]byte(tags), &e.Tags); err != nil {
		return nil, fmt.Errorf("decode tags of entry %d: %w", e.ID, err)
	}
	if err := json.Unmarshal([]byte(meta), &e.Metadata); err != nil {
		return nil, fmt.Errorf("decode metadata of entry %d: %w", e.ID, err)
	}
	if slug.Valid {
		e.Slug = &slug.String
	}
	e.State = State(state)
	e.CreatedAt = time.Unix(createdAt, 0).UTC()

	return &e, nil
}

func encodeEntry(e *Entry) (string, string, error) {
	tags := e.Tags
	if tags == nil {
		tags = []Tag{}
	}

	rawTags, err := json.Marshal(tags)
	if err != nil {
		return "", "", err
	}

	rawMeta, err := json.Marshal(e.Metadata)
	if err != nil {
		return "", "", err
	}

	return string(rawTags), string(rawMeta), nil
}

func nullableSlug(slug *string) any {
	if slug == nil || *slug == "" {
		return nil
	}
	return *slug
}

func (s *SQLStore) insertUserQuery() string {
	return s.withReturning(fmt.Sprintf(
		"INSERT INTO %s (username, token_hash, upload_limit, uploaded, created_at) VALUES (%s)",
		s.users, s.d.placeholders(1, 5),
	))
}

func (s *SQLStore) selectUserQuery(column string) string {
	return fmt.Sprintf("SELECT id, username, upload_limit, uploaded FROM %s WHERE %s = %s", s.users, column, s.d.placeholderFor(1))
}

func (s *SQLStore) userExistsQuery() string {
	return fmt.Sprintf("SELECT 1 FROM %s WHERE id = %s", s.users, s.d.placeholderFor(1))
}

func (s *SQLStore) chargeUnlimitedQuery() string {
	return fmt.Sprintf("UPDATE %s SET uploaded = uploaded + %s WHERE id = %s",
		s.users, s.d.placeholderFor(1), s.d.placeholderFor(2))
}

func (s *SQLStore) chargeLimitedQuery() string {
	return fmt.Sprintf("UPDATE %s SET uploaded = uploaded + %s WHERE id = %s AND uploaded + %s <= %s",
		s.users, s.d.placeholderFor(1), s.d.placeholderFor(2), s.d.placeholderFor(3), s.d.placeholderFor(4))
}

func (s *SQLStore) refundQuery() string {
	return fmt.Sprintf("UPDATE %s SET uploaded = uploaded - %s WHERE id = %s AND uploaded >= %s",
		s.users, s.d.placeholderFor(1), s.d.placeholderFor(2), s.d.placeholderFor(3))
}

func (s *SQLStore) reserveQuery() string {
	return s.withReturning(fmt.Sprintf(
		"INSERT INTO %s (owner_id, title, description, license, tags, media_type, slug, state, file_size, queued_file, metadata, created_at) VALUES (%s)",
		s.entries, s.d.placeholders(1, 12),
	))
}

func (s *SQLStore) commitEntryQuery() string {
	p := s.d.placeholderFor
	return fmt.Sprintf(
		"UPDATE %s SET title = %s, description = %s, license = %s, tags = %s, media_type = %s, slug = %s, state = %s, file_size = %s, queued_file = %s, metadata = %s WHERE id = %s",
		s.entries, p(1), p(2), p(3), p(4), p(5), p(6), p(7), p(8), p(9), p(10), p(11),
	)
}

func (s *SQLStore) slugTakenQuery() string {
	return fmt.Sprintf("SELECT 1 FROM %s WHERE owner_id = %s AND slug = %s AND id <> %s",
		s.entries, s.d.placeholderFor(1), s.d.placeholderFor(2), s.d.placeholderFor(3))
}

func (s *SQLStore) selectEntryByIDQuery() string {
	return fmt.Sprintf("SELECT %s FROM %s WHERE id = %s", entryColumns, s.entries, s.d.placeholderFor(1))
}

func (s *SQLStore) selectEntryBySlugQuery() string {
	return fmt.Sprintf("SELECT %s FROM %s WHERE owner_id = %s AND slug = %s",
		entryColumns, s.entries, s.d.placeholderFor(1), s.d.placeholderFor(2))
}

func (s *SQLStore) entryChargeQuery() string {
	return fmt.Sprintf("SELECT owner_id, file_size FROM %s WHERE id = %s", s.entries, s.d.placeholderFor(1))
}

func (s *SQLStore) transitionQuery() string {
	return fmt.Sprintf("UPDATE %s SET state = %s WHERE id = %s AND state = %s",
		s.entries, s.d.placeholderFor(1), s.d.placeholderFor(2), s.d.placeholderFor(3))
}

func (s *SQLStore) finishQuery() string {
	return fmt.Sprintf("UPDATE %s SET state = %s, metadata = %s WHERE id = %s",
		s.entries, s.d.placeholderFor(1), s.d.placeholderFor(2), s.d.placeholderFor(3))
}

func (s *SQLStore) staleQuery() string {
	return fmt.Sprintf("SELECT %s FROM %s WHERE state = %s AND created_at < %s ORDER BY id LIMIT %s",
		entryColumns, s.entries, s.d.placeholderFor(1), s.d.placeholderFor(2), s.d.placeholderFor(3))
}

func (s *SQLStore) deleteEntryQuery() string {
	return fmt.Sprintf("DELETE FROM %s WHERE id = %s", s.entries, s.d.placeholderFor(1))
}

func (s *SQLStore) deleteSubscriptionsQuery() string {
	return fmt.Sprintf("DELETE FROM %s WHERE entry_id = %s", s.subscriptions, s.d.placeholderFor(1))
}

func (s *SQLStore) subscribeQuery() string {
	return fmt.Sprintf("INSERT INTO %s (entry_id, user_id, notify, send_email, created_at) VALUES (%s)",
		s.subscriptions, s.d.placeholders(1, 5))
}

func (s *SQLStore) subscribedQuery() string {
	return fmt.Sprintf("SELECT 1 FROM %s WHERE entry_id = %s AND user_id = %s",
		s.subscriptions, s.d.placeholderFor(1), s.d.placeholderFor(2))
}

func (s *SQLStore) withReturning(query string) string {
	if s.d.returning {
		return query + " RETURNING id"
	}
	return query
}
