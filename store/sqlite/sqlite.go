package sqlite

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/bornholm/remotedav/store"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitemigration"
	"zombiezen.com/go/sqlite/sqlitex"
)

// Store keeps resources and their contents in a single SQLite table.
type Store struct {
	pool *sqlitemigration.Pool
}

type row struct {
	path        string
	collection  bool
	size        int64
	mtime       int64
	etag        string
	contentType string
}

const selectColumns = `path, collection, size, mtime, etag, content_type`

// List implements store.Store.
func (s *Store) List(ctx context.Context, name string) ([]string, error) {
	infos, err := s.ListInfo(ctx, name)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(infos))
	for _, info := range infos {
		names = append(names, store.Base(info.Path))
	}

	return names, nil
}

// ListInfo implements store.InfoLister.
func (s *Store) ListInfo(ctx context.Context, name string) ([]*store.Info, error) {
	name = clean(name)

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, mapError(err)
	}
	defer s.pool.Put(conn)

	parent, err := getRow(conn, name)
	if err != nil {
		return nil, err
	}

	if !parent.collection {
		return nil, errors.Wrapf(store.ErrConflict, "'%s' is not a collection", name)
	}

	infos := make([]*store.Info, 0)

	err = sqlitex.Execute(conn, `SELECT `+selectColumns+` FROM resources WHERE parent = ? AND path != '/' ORDER BY path`, &sqlitex.ExecOptions{
		Args: []any{name},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			infos = append(infos, scanRow(stmt).info())
			return nil
		},
	})
	if err != nil {
		return nil, mapError(err)
	}

	return infos, nil
}

// Stat implements store.Store.
func (s *Store) Stat(ctx context.Context, name string) (*store.Info, error) {
	name = clean(name)

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, mapError(err)
	}
	defer s.pool.Put(conn)

	r, err := getRow(conn, name)
	if err != nil {
		return nil, err
	}

	return r.info(), nil
}

// Read implements store.Store.
func (s *Store) Read(ctx context.Context, name string) (io.ReadCloser, error) {
	name = clean(name)

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, mapError(err)
	}
	defer s.pool.Put(conn)

	var (
		data       []byte
		found      bool
		collection bool
	)

	err = sqlitex.Execute(conn, `SELECT collection, content FROM resources WHERE path = ?`, &sqlitex.ExecOptions{
		Args: []any{name},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			found = true
			collection = stmt.ColumnInt(0) == 1
			data = make([]byte, stmt.ColumnLen(1))
			stmt.ColumnBytes(1, data)
			return nil
		},
	})
	if err != nil {
		return nil, mapError(err)
	}

	if !found {
		return nil, errors.WithStack(store.ErrNotFound)
	}

	if collection {
		return nil, errors.Wrapf(store.ErrConflict, "'%s' is a collection", name)
	}

	return readSeekNopCloser{bytes.NewReader(data)}, nil
}

// Write implements store.Store.
func (s *Store) Write(ctx context.Context, name string, r io.Reader, opts store.WriteOptions) (etag string, err error) {
	name = clean(name)

	data, err := io.ReadAll(r)
	if err != nil {
		return "", errors.WithStack(err)
	}

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return "", mapError(err)
	}
	defer s.pool.Put(conn)

	defer sqlitex.Save(conn)(&err)

	if err := checkParent(conn, name); err != nil {
		return "", err
	}

	existing, err := getRow(conn, name)
	switch {
	case err == nil:
		if existing.collection {
			return "", errors.Wrapf(store.ErrConflict, "'%s' is a collection", name)
		}

		if opts.ExpectedETag != "" && !store.ETagMatch(existing.etag, opts.ExpectedETag) {
			return "", errors.WithStack(store.ErrETagMismatch)
		}

	case errors.Is(err, store.ErrNotFound):
		if opts.ExpectedETag != "" {
			return "", errors.WithStack(store.ErrETagMismatch)
		}

	default:
		return "", err
	}

	etag = computeETag(data)

	err = sqlitex.Execute(conn, `
		INSERT INTO resources (path, parent, collection, size, mtime, etag, content_type, content)
		VALUES (?, ?, 0, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			size = excluded.size,
			mtime = excluded.mtime,
			etag = excluded.etag,
			content_type = excluded.content_type,
			content = excluded.content
	`, &sqlitex.ExecOptions{
		Args: []any{name, store.Parent(name), len(data), time.Now().UnixNano(), etag, opts.ContentType, data},
	})
	if err != nil {
		return "", mapError(err)
	}

	return etag, nil
}

// Delete implements store.Store.
func (s *Store) Delete(ctx context.Context, name string) (err error) {
	name = clean(name)

	if store.IsRoot(name) {
		return errors.Wrap(store.ErrConflict, "root collection cannot be deleted")
	}

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return mapError(err)
	}
	defer s.pool.Put(conn)

	defer sqlitex.Save(conn)(&err)

	existing, err := getRow(conn, name)
	if err != nil {
		return err
	}

	if existing.collection {
		var children int
		err = sqlitex.Execute(conn, `SELECT COUNT(*) FROM resources WHERE parent = ?`, &sqlitex.ExecOptions{
			Args: []any{name},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				children = stmt.ColumnInt(0)
				return nil
			},
		})
		if err != nil {
			return mapError(err)
		}

		if children > 0 {
			return errors.Wrapf(store.ErrConflict, "collection '%s' is not empty", name)
		}
	}

	err = sqlitex.Execute(conn, `DELETE FROM resources WHERE path = ?`, &sqlitex.ExecOptions{
		Args: []any{name},
	})
	if err != nil {
		return mapError(err)
	}

	return nil
}

// Mkcol implements store.Store.
func (s *Store) Mkcol(ctx context.Context, name string) (err error) {
	name = clean(name)

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return mapError(err)
	}
	defer s.pool.Put(conn)

	defer sqlitex.Save(conn)(&err)

	if _, err := getRow(conn, name); err == nil {
		return errors.WithStack(store.ErrExist)
	} else if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	if err := checkParent(conn, name); err != nil {
		return err
	}

	err = sqlitex.Execute(conn, `
		INSERT INTO resources (path, parent, collection, size, mtime, etag, content_type, content)
		VALUES (?, ?, 1, 0, ?, ?, '', NULL)
	`, &sqlitex.ExecOptions{
		Args: []any{name, store.Parent(name), time.Now().UnixNano(), store.QuoteETag(uuid.NewString())},
	})
	if err != nil {
		return mapError(err)
	}

	return nil
}

// Move implements store.Store.
func (s *Store) Move(ctx context.Context, from, to string) (err error) {
	from, to = clean(from), clean(to)

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return mapError(err)
	}
	defer s.pool.Put(conn)

	defer sqlitex.Save(conn)(&err)

	source, err := getRow(conn, from)
	if err != nil {
		return err
	}

	if source.collection {
		return errors.Wrapf(store.ErrConflict, "'%s' is a collection", from)
	}

	if err := checkDestination(conn, to); err != nil {
		return err
	}

	if err := deleteRow(conn, to); err != nil {
		return err
	}

	err = sqlitex.Execute(conn, `UPDATE resources SET path = ?, parent = ? WHERE path = ?`, &sqlitex.ExecOptions{
		Args: []any{to, store.Parent(to), from},
	})
	if err != nil {
		return mapError(err)
	}

	return nil
}

// Copy implements store.Store.
func (s *Store) Copy(ctx context.Context, from, to string) (err error) {
	from, to = clean(from), clean(to)

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return mapError(err)
	}
	defer s.pool.Put(conn)

	defer sqlitex.Save(conn)(&err)

	source, err := getRow(conn, from)
	if err != nil {
		return err
	}

	if source.collection {
		return errors.Wrapf(store.ErrConflict, "'%s' is a collection", from)
	}

	if err := checkDestination(conn, to); err != nil {
		return err
	}

	if err := deleteRow(conn, to); err != nil {
		return err
	}

	err = sqlitex.Execute(conn, `
		INSERT INTO resources (path, parent, collection, size, mtime, etag, content_type, content)
		SELECT ?, ?, 0, size, ?, etag, content_type, content FROM resources WHERE path = ?
	`, &sqlitex.ExecOptions{
		Args: []any{to, store.Parent(to), time.Now().UnixNano(), from},
	})
	if err != nil {
		return mapError(err)
	}

	return nil
}

// MoveTree implements store.TreeMover.
func (s *Store) MoveTree(ctx context.Context, from, to string) (err error) {
	from, to = clean(from), clean(to)

	if store.IsRoot(from) || store.IsDescendant(to, from) {
		return errors.Wrapf(store.ErrConflict, "cannot move '%s' to '%s'", from, to)
	}

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return mapError(err)
	}
	defer s.pool.Put(conn)

	defer sqlitex.Save(conn)(&err)

	if _, err := getRow(conn, from); err != nil {
		return err
	}

	if err := checkParent(conn, to); err != nil {
		return err
	}

	if _, err := getRow(conn, to); err == nil {
		return errors.Wrapf(store.ErrExist, "destination '%s' already exists", to)
	} else if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	// Descendants sort between "<from>/" and "<from>0" under binary collation
	paths := []string{from}
	err = sqlitex.Execute(conn, `SELECT path FROM resources WHERE path >= ? AND path < ?`, &sqlitex.ExecOptions{
		Args: []any{from + "/", from + "0"},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			paths = append(paths, stmt.ColumnText(0))
			return nil
		},
	})
	if err != nil {
		return mapError(err)
	}

	for _, p := range paths {
		target := to + p[len(from):]

		err = sqlitex.Execute(conn, `UPDATE resources SET path = ?, parent = ? WHERE path = ?`, &sqlitex.ExecOptions{
			Args: []any{target, store.Parent(target), p},
		})
		if err != nil {
			return mapError(err)
		}
	}

	return nil
}

func (s *Store) Close() error {
	if err := s.pool.Close(); err != nil {
		return errors.WithStack(err)
	}

	return nil
}

func getRow(conn *sqlite.Conn, name string) (*row, error) {
	var r *row

	err := sqlitex.Execute(conn, `SELECT `+selectColumns+` FROM resources WHERE path = ?`, &sqlitex.ExecOptions{
		Args: []any{name},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			r = scanRow(stmt)
			return nil
		},
	})
	if err != nil {
		return nil, mapError(err)
	}

	if r == nil {
		return nil, errors.WithStack(store.ErrNotFound)
	}

	return r, nil
}

func deleteRow(conn *sqlite.Conn, name string) error {
	err := sqlitex.Execute(conn, `DELETE FROM resources WHERE path = ? AND collection = 0`, &sqlitex.ExecOptions{
		Args: []any{name},
	})
	if err != nil {
		return mapError(err)
	}

	return nil
}

func checkParent(conn *sqlite.Conn, name string) error {
	if store.IsRoot(name) {
		return errors.Wrap(store.ErrConflict, "root collection has no parent")
	}

	parent, err := getRow(conn, store.Parent(name))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return errors.Wrapf(store.ErrConflict, "parent collection of '%s' does not exist", name)
		}

		return err
	}

	if !parent.collection {
		return errors.Wrapf(store.ErrConflict, "parent of '%s' is not a collection", name)
	}

	return nil
}

func checkDestination(conn *sqlite.Conn, to string) error {
	if err := checkParent(conn, to); err != nil {
		return err
	}

	existing, err := getRow(conn, to)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}

		return err
	}

	if existing.collection {
		return errors.Wrapf(store.ErrExist, "destination '%s' is a collection", to)
	}

	return nil
}

func scanRow(stmt *sqlite.Stmt) *row {
	return &row{
		path:        stmt.ColumnText(0),
		collection:  stmt.ColumnInt(1) == 1,
		size:        stmt.ColumnInt64(2),
		mtime:       stmt.ColumnInt64(3),
		etag:        stmt.ColumnText(4),
		contentType: stmt.ColumnText(5),
	}
}

func (r *row) info() *store.Info {
	return &store.Info{
		Path:        r.path,
		Size:        r.size,
		ModTime:     time.Unix(0, r.mtime).UTC(),
		ETag:        r.etag,
		ContentType: r.contentType,
		Collection:  r.collection,
	}
}

func mapError(err error) error {
	switch sqlite.ErrCode(err).ToPrimary() {
	case sqlite.ResultBusy, sqlite.ResultLocked:
		return errors.Wrap(store.ErrUnavailable, err.Error())
	case sqlite.ResultFull:
		return errors.Wrap(store.ErrInsufficientStorage, err.Error())
	default:
		return errors.WithStack(err)
	}
}

type readSeekNopCloser struct {
	*bytes.Reader
}

func (readSeekNopCloser) Close() error { return nil }

func computeETag(data []byte) string {
	sum := sha256.Sum256(data)
	return store.QuoteETag(hex.EncodeToString(sum[:16]))
}

func clean(name string) string {
	return store.Join("/", name)
}

func NewStore(dbPath string) *Store {
	schema := sqlitemigration.Schema{
		Migrations: []string{
			`CREATE TABLE IF NOT EXISTS resources (
					path TEXT PRIMARY KEY,
					parent TEXT NOT NULL,
					collection INTEGER NOT NULL,
					size INTEGER NOT NULL,
					mtime INTEGER NOT NULL,
					etag TEXT NOT NULL,
					content_type TEXT NOT NULL DEFAULT '',
					content BLOB
				);
			`,
			`CREATE INDEX IF NOT EXISTS idx_resources_parent ON resources(parent);`,
		},
		RepeatableMigration: fmt.Sprintf(
			`INSERT OR IGNORE INTO resources (path, parent, collection, size, mtime, etag) VALUES ('/', '/', 1, 0, %d, '"%s"')`,
			time.Now().UnixNano(), uuid.NewString(),
		),
	}

	pool := sqlitemigration.NewPool(dbPath, schema, sqlitemigration.Options{
		Flags: sqlite.OpenCreate | sqlite.OpenReadWrite | sqlite.OpenWAL,
		PrepareConn: func(conn *sqlite.Conn) error {
			return sqlitex.ExecScript(conn, `PRAGMA auto_vacuum=FULL; PRAGMA busy_timeout = 5000;`)
		},
		OnError: func(err error) {
			slog.Error("sqlite migration error", slog.Any("error", errors.WithStack(err)))
		},
	})

	return &Store{
		pool: pool,
	}
}

var (
	_ store.Store      = &Store{}
	_ store.TreeMover  = &Store{}
	_ store.InfoLister = &Store{}
)
