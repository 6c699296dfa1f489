package mysql

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"support_chat_server/internal/dao/docstore"
	"support_chat_server/pkg/errorx"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// documentRow maps the documents table
type documentRow struct {
	Path       string `gorm:"column:path;primaryKey;type:varchar(191);index:idx_documents_window,priority:1"`
	ID         string `gorm:"column:id;primaryKey;type:varchar(64);index:idx_documents_window,priority:3"`
	SortKey    int64  `gorm:"column:sort_key;not null;default:0;index:idx_documents_window,priority:2"`
	Data       string `gorm:"column:data;type:longtext;not null"`
	CreateTime int64  `gorm:"column:create_time;not null;comment:unix nanoseconds"`
	UpdateTime int64  `gorm:"column:update_time;not null;comment:unix nanoseconds"`
}

// TableName sets the table name
func (documentRow) TableName() string {
	return "documents"
}

// Store implements docstore.Backend on MySQL.
type Store struct {
	db *gorm.DB
}

var _ docstore.Backend = (*Store)(nil)

// NewStore wraps an open GORM handle.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Transaction runs fn against a Store bound to one database transaction.
// Returning an error rolls everything back.
func (s *Store) Transaction(ctx context.Context, fn func(tx *Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewStore(tx))
	})
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) Insert(ctx context.Context, path string, doc docstore.Document) (docstore.Document, error) {
	row, err := toRow(path, doc)
	if err != nil {
		return docstore.Document{}, err
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return docstore.Document{}, errorx.Wrapf(err, errorx.CodeConflict, "document %s/%s already exists", path, doc.ID)
		}
		return docstore.Document{}, wrapDBErrorf(err, "insert %s/%s", path, doc.ID)
	}
	return doc, nil
}

func (s *Store) Update(ctx context.Context, path, id string, patch docstore.Patch, now time.Time) (docstore.Document, error) {
	var next docstore.Document
	err := s.Transaction(ctx, func(tx *Store) error {
		var row documentRow
		exists := true
		err := tx.db.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("path = ? AND id = ?", path, id).
			Take(&row).Error
		var current docstore.Document
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			exists = false
		case err != nil:
			return wrapDBErrorf(err, "load %s/%s", path, id)
		default:
			if current, err = fromRow(row); err != nil {
				return err
			}
		}

		if next, err = docstore.Merge(current, exists, id, patch, now); err != nil {
			return err
		}
		nextRow, err := toRow(path, next)
		if err != nil {
			return err
		}
		err = tx.db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "path"}, {Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"sort_key", "data", "update_time"}),
		}).Create(&nextRow).Error
		return wrapDBErrorf(err, "write %s/%s", path, id)
	})
	if err != nil {
		return docstore.Document{}, err
	}
	return next, nil
}

func (s *Store) Get(ctx context.Context, path, id string) (docstore.Document, error) {
	var row documentRow
	if err := s.db.WithContext(ctx).Where("path = ? AND id = ?", path, id).Take(&row).Error; err != nil {
		return docstore.Document{}, wrapDBErrorf(err, "document %s/%s", path, id)
	}
	return fromRow(row)
}

func (s *Store) Delete(ctx context.Context, path, id string) error {
	err := s.db.WithContext(ctx).Where("path = ? AND id = ?", path, id).Delete(&documentRow{}).Error
	return wrapDBErrorf(err, "delete %s/%s", path, id)
}

func (s *Store) DeleteAll(ctx context.Context, path string) (int64, error) {
	res := s.db.WithContext(ctx).Where("path = ?", path).Delete(&documentRow{})
	if res.Error != nil {
		return 0, wrapDBErrorf(res.Error, "delete collection %s", path)
	}
	return res.RowsAffected, nil
}

func (s *Store) Query(ctx context.Context, path string, q docstore.Query) ([]docstore.Document, error) {
	conds, args, order := docstore.WindowClause(q)
	db := s.db.WithContext(ctx).Where("path = ?", path)
	if len(conds) > 0 {
		db = db.Where(strings.Join(conds, " AND "), args...)
	}
	db = db.Order(order)
	if q.Limit > 0 {
		db = db.Limit(q.Limit)
	}

	var rows []documentRow
	if err := db.Find(&rows).Error; err != nil {
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

// wrapDBErrorf maps gorm errors to business codes:
// ErrRecordNotFound -> CodeNotFound, anything else -> CodeStoreUnavailable.
func wrapDBErrorf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	msg := fmt.Sprintf(format, args...)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return errorx.Wrap(err, errorx.CodeNotFound, msg+" not found")
	}
	return errorx.Wrap(err, errorx.CodeStoreUnavailable, msg)
}
