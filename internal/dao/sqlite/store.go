// Package sqlite is the local document store backend: an embedded SQLite file
// accessed through sqlx, with the schema managed by golang-migrate.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"support_chat_server/internal/dao/docstore"
	"support_chat_server/internal/dao/sqlite/migrations"
	"support_chat_server/pkg/errorx"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	_ "modernc.org/sqlite"
)

// Store implements docstore.Backend on SQLite.
type Store struct {
	db *sqlx.DB
}

var _ docstore.Backend = (*Store)(nil)

type documentRow struct {
	Path       string `db:"path"`
	ID         string `db:"id"`
	SortKey    int64  `db:"sort_key"`
	Data       string `db:"data"`
	CreateTime int64  `db:"create_time"`
	UpdateTime int64  `db:"update_time"`
}

// Open connects to the database file at path, creating it if needed, and applies migrations.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sqlx.Connect("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect sqlite: %w", err)
	}
	// single writer; transactions serialize on this connection
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := applyMigrations(db.DB, path); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			zap.L().Error("close sqlite after migration failure", zap.Error(closeErr))
		}
		return nil, err
	}
	zap.L().Info("sqlite document store ready", zap.String("path", path))
	return &Store{db: db}, nil
}

func applyMigrations(db *sql.DB, name string) error {
	source, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return fmt.Errorf("open embedded migrations: %w", err)
	}
	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{DatabaseName: name})
	if err != nil {
		return fmt.Errorf("create migrate driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// Close closes the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Maintain refreshes planner statistics and truncates the WAL.
func (s *Store) Maintain(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "PRAGMA optimize"); err != nil {
		return wrapDBError(err, "optimize")
	}
	if _, err := s.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return wrapDBError(err, "wal checkpoint")
	}
	return nil
}

func (s *Store) Insert(ctx context.Context, path string, doc docstore.Document) (docstore.Document, error) {
	row, err := toRow(path, doc)
	if err != nil {
		return docstore.Document{}, err
	}
	res, err := s.db.NamedExecContext(ctx, `
		INSERT INTO documents (path, id, sort_key, data, create_time, update_time)
		VALUES (:path, :id, :sort_key, :data, :create_time, :update_time)
		ON CONFLICT (path, id) DO NOTHING`, row)
	if err != nil {
		return docstore.Document{}, wrapDBErrorf(err, "insert %s/%s", path, doc.ID)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return docstore.Document{}, errorx.Newf(errorx.CodeConflict, "document %s/%s already exists", path, doc.ID)
	}
	return doc, nil
}

func (s *Store) Update(ctx context.Context, path, id string, patch docstore.Patch, now time.Time) (docstore.Document, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return docstore.Document{}, wrapDBError(err, "begin transaction")
	}
	defer func() {
		if tx != nil {
			_ = tx.Rollback()
		}
	}()

	var current docstore.Document
	exists := true
	var row documentRow
	err = tx.GetContext(ctx, &row, `SELECT * FROM documents WHERE path = ? AND id = ?`, path, id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		exists = false
	case err != nil:
		return docstore.Document{}, wrapDBErrorf(err, "load %s/%s", path, id)
	default:
		if current, err = fromRow(row); err != nil {
			return docstore.Document{}, err
		}
	}

	next, err := docstore.Merge(current, exists, id, patch, now)
	if err != nil {
		return docstore.Document{}, err
	}
	nextRow, err := toRow(path, next)
	if err != nil {
		return docstore.Document{}, err
	}
	if _, err := tx.NamedExecContext(ctx, `
		INSERT INTO documents (path, id, sort_key, data, create_time, update_time)
		VALUES (:path, :id, :sort_key, :data, :create_time, :update_time)
		ON CONFLICT (path, id) DO UPDATE SET
			sort_key = excluded.sort_key,
			data = excluded.data,
			update_time = excluded.update_time`, nextRow); err != nil {
		return docstore.Document{}, wrapDBErrorf(err, "write %s/%s", path, id)
	}

	if err := tx.Commit(); err != nil {
		return docstore.Document{}, wrapDBError(err, "commit")
	}
	tx = nil
	return next, nil
}

func (s *Store) Get(ctx context.Context, path, id string) (docstore.Document, error) {
	var row documentRow
	if err := s.db.GetContext(ctx, &row, `SELECT * FROM documents WHERE path = ? AND id = ?`, path, id); err != nil {
		return docstore.Document{}, wrapDBErrorf(err, "document %s/%s", path, id)
	}
	return fromRow(row)
}

func (s *Store) Delete(ctx context.Context, path, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE path = ? AND id = ?`, path, id); err != nil {
		return wrapDBErrorf(err, "delete %s/%s", path, id)
	}
	return nil
}

func (s *Store) DeleteAll(ctx context.Context, path string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE path = ?`, path)
	if err != nil {
		return 0, wrapDBErrorf(err, "delete collection %s", path)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (s *Store) Query(ctx context.Context, path string, q docstore.Query) ([]docstore.Document, error) {
	conds, args, order := docstore.WindowClause(q)
	where := "path = ?"
	if len(conds) > 0 {
		where += " AND " + strings.Join(conds, " AND ")
	}
	query := "SELECT * FROM documents WHERE " + where + " ORDER BY " + order
	args = append([]any{path}, args...)
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}

	var rows []documentRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, wrapDBErrorf(err, "query %s", path)
	}
	docs := make([]docstore.Document, 0, len(rows))
	for _, row := range rows {
		doc, err := fromRow(row)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func toRow(path string, doc docstore.Document) (documentRow, error) {
	data, err := docstore.MarshalData(doc.Data)
	if err != nil {
		return documentRow{}, err
	}
	return documentRow{
		Path:       path,
		ID:         doc.ID,
		SortKey:    doc.SortKey,
		Data:       data,
		CreateTime: doc.CreateTime.UnixNano(),
		UpdateTime: doc.UpdateTime.UnixNano(),
	}, nil
}

func fromRow(row documentRow) (docstore.Document, error) {
	data, err := docstore.UnmarshalData(row.Data)
	if err != nil {
		return docstore.Document{}, err
	}
	return docstore.Document{
		ID:         row.ID,
		SortKey:    row.SortKey,
		Data:       data,
		CreateTime: time.Unix(0, row.CreateTime),
		UpdateTime: time.Unix(0, row.UpdateTime),
	}, nil
}

func wrapDBError(err error, msg string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return errorx.Wrap(err, errorx.CodeNotFound, msg+" not found")
	}
	return errorx.Wrap(err, errorx.CodeStoreUnavailable, msg)
}

func wrapDBErrorf(err error, format string, args ...any) error {
	return wrapDBError(err, fmt.Sprintf(format, args...))
}
