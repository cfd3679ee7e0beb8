package sqlite

import (
	"database/sql"
	"fmt"

	"camsync/internal/model"
)

// FrameRepository implements repository.FrameRepository for SQLite.
type FrameRepository struct {
	db *DB
}

// NewFrameRepository creates a new SQLite frame repository.
func NewFrameRepository(db *DB) *FrameRepository {
	return &FrameRepository{db: db}
}

// Insert adds a new frame record to the database.
func (r *FrameRepository) Insert(f *model.Frame) (int64, error) {
	r.db.Lock()
	defer r.db.Unlock()

	result, err := r.db.Conn().Exec(`
		INSERT INTO frames (bundle_id, port, sequence, timestamp, filename, filepath, filesize, features)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, f.BundleID, f.Port, f.Sequence, f.Timestamp, f.Filename, f.FilePath, f.FileSize, f.Features)
	if err != nil {
		return 0, fmt.Errorf("failed to insert frame: %w", err)
	}

	return result.LastInsertId()
}

// InsertBatch adds multiple frames in a single transaction.
func (r *FrameRepository) InsertBatch(frames []model.Frame) error {
	r.db.Lock()
	defer r.db.Unlock()

	tx, err := r.db.Conn().Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO frames (bundle_id, port, sequence, timestamp, filename, filepath, filesize, features)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, f := range frames {
		if _, err := stmt.Exec(f.BundleID, f.Port, f.Sequence, f.Timestamp, f.Filename, f.FilePath, f.FileSize, f.Features); err != nil {
			return fmt.Errorf("failed to insert frame: %w", err)
		}
	}

	return tx.Commit()
}

// GetByBundleID retrieves the frames of a bundle ordered by port.
func (r *FrameRepository) GetByBundleID(bundleID int64) ([]model.Frame, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	rows, err := r.db.Conn().Query(`
		SELECT id, bundle_id, port, sequence, timestamp, filename, filepath, filesize, features
		FROM frames WHERE bundle_id = ? ORDER BY port
	`, bundleID)
	if err != nil {
		return nil, fmt.Errorf("failed to query frames: %w", err)
	}
	defer rows.Close()

	var frames []model.Frame
	for rows.Next() {
		var f model.Frame
		if err := rows.Scan(&f.ID, &f.BundleID, &f.Port, &f.Sequence, &f.Timestamp, &f.Filename, &f.FilePath, &f.FileSize, &f.Features); err != nil {
			return nil, fmt.Errorf("failed to scan frame: %w", err)
		}
		frames = append(frames, f)
	}
	return frames, rows.Err()
}

// GetByFilename retrieves a frame by its filename. It returns nil if there is none.
func (r *FrameRepository) GetByFilename(filename string) (*model.Frame, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	var f model.Frame
	err := r.db.Conn().QueryRow(`
		SELECT id, bundle_id, port, sequence, timestamp, filename, filepath, filesize, features
		FROM frames WHERE filename = ?
	`, filename).Scan(&f.ID, &f.BundleID, &f.Port, &f.Sequence, &f.Timestamp, &f.Filename, &f.FilePath, &f.FileSize, &f.Features)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get frame: %w", err)
	}
	return &f, nil
}

// GetDirectorySize returns the total size of all recorded frames in bytes.
func (r *FrameRepository) GetDirectorySize() (int64, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	var size int64
	if err := r.db.Conn().QueryRow(`SELECT COALESCE(SUM(filesize), 0) FROM frames`).Scan(&size); err != nil {
		return 0, fmt.Errorf("failed to sum frame sizes: %w", err)
	}
	return size, nil
}

// DeleteByBundleID removes all frames of a bundle.
func (r *FrameRepository) DeleteByBundleID(bundleID int64) error {
	r.db.Lock()
	defer r.db.Unlock()

	if _, err := r.db.Conn().Exec(`DELETE FROM frames WHERE bundle_id = ?`, bundleID); err != nil {
		return fmt.Errorf("failed to delete frames: %w", err)
	}
	return nil
}
