package repository

import (
	"camsync/internal/dto"
	"camsync/internal/model"
)

// BundleRepository defines the interface for recorded bundle operations.
type BundleRepository interface {
	// Create operations
	Insert(b *model.Bundle) (int64, error)

	// Read operations
	GetByID(id int64) (*model.Bundle, error)
	GetAll(filter *dto.BundleFilter) ([]model.Bundle, error)
	GetTotalCount(filter *dto.BundleFilter) (int, error)
	GetSessions() ([]string, error)

	// Delete operations
	Delete(id int64) error
	DeleteAll() error
}

// FrameRepository defines the interface for recorded frame operations.
type FrameRepository interface {
	// Create operations
	Insert(f *model.Frame) (int64, error)
	InsertBatch(frames []model.Frame) error

	// Read operations
	GetByBundleID(bundleID int64) ([]model.Frame, error)
	GetByFilename(filename string) (*model.Frame, error)
	GetDirectorySize() (int64, error)

	// Delete operations
	DeleteByBundleID(bundleID int64) error
}
