package store

import (
	"context"
	"errors"
	"time"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"

	"syncServer/backend/internal/errs"
)

// Document is the durable row backing one collaboratively edited file.
type Document struct {
	ID        uint64 `gorm:"primaryKey"`
	ProjectID string `gorm:"size:64;uniqueIndex:idx_project_file,priority:1"`
	FileID    string `gorm:"size:64;uniqueIndex:idx_project_file,priority:2"`
	Content   string `gorm:"type:longtext"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

type DocumentStore struct{ db *gorm.DB }

func NewDocumentStore(db *gorm.DB) *DocumentStore {
	return &DocumentStore{db: db}
}

// Migrate creates the documents table.
func (s *DocumentStore) Migrate() error {
	return s.db.AutoMigrate(&Document{})
}

func (s *DocumentStore) GetContent(ctx context.Context, projectID, fileID string) (string, error) {
	var doc Document
	err := s.db.WithContext(ctx).
		Select("content").
		Where("project_id = ? AND file_id = ?", projectID, fileID).
		First(&doc).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", errs.Newf(errs.CodeNotFound, "document %s/%s not found", projectID, fileID)
		}
		return "", errs.Wrap(errs.CodePersistence, "load document failed", err)
	}
	return doc.Content, nil
}

func (s *DocumentStore) ReplaceContent(ctx context.Context, projectID, fileID, content string) error {
	res := s.db.WithContext(ctx).
		Model(&Document{}).
		Where("project_id = ? AND file_id = ?", projectID, fileID).
		Update("content", content)
	if res.Error != nil {
		return errs.Wrap(errs.CodePersistence, "replace content failed", res.Error)
	}
	if res.RowsAffected == 0 {
		return errs.Newf(errs.CodeNotFound, "document %s/%s not found", projectID, fileID)
	}
	return nil
}

// Create inserts an empty document. Re-creating an existing (project, file)
// pair is tolerated: MySQL duplicate-key errors (1062) report success so the
// call stays idempotent.
func (s *DocumentStore) Create(ctx context.Context, projectID, fileID, content string) error {
	err := s.db.WithContext(ctx).Create(&Document{
		ProjectID: projectID,
		FileID:    fileID,
		Content:   content,
	}).Error
	if err != nil {
		var mysqlErr *mysql.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
			return nil
		}
		return errs.Wrap(errs.CodePersistence, "create document failed", err)
	}
	return nil
}
