package sqlite

import (
	"database/sql"
	"fmt"

	"camsync/internal/dto"
	"camsync/internal/model"
)

// BundleRepository implements repository.BundleRepository for SQLite.
type BundleRepository struct {
	db *DB
}

// NewBundleRepository creates a new SQLite bundle repository.
func NewBundleRepository(db *DB) *BundleRepository {
	return &BundleRepository{db: db}
}

// Insert adds a new bundle record to the database.
func (r *BundleRepository) Insert(b *model.Bundle) (int64, error) {
	r.db.Lock()
	defer r.db.Unlock()

	result, err := r.db.Conn().Exec(`
		INSERT INTO bundles (session, bundle_index, cutoff, mean_time, ports, present)
		VALUES (?, ?, ?, ?, ?, ?)
	`, b.Session, b.Index, b.Cutoff, b.MeanTime, b.Ports, b.Present)
	if err != nil {
		return 0, fmt.Errorf("failed to insert bundle: %w", err)
	}

	return result.LastInsertId()
}

// GetByID retrieves a bundle by its ID. It returns nil if there is none.
func (r *BundleRepository) GetByID(id int64) (*model.Bundle, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	var b model.Bundle
	err := r.db.Conn().QueryRow(`
		SELECT id, session, bundle_index, cutoff, mean_time, ports, present, created_at
		FROM bundles WHERE id = ?
	`, id).Scan(&b.ID, &b.Session, &b.Index, &b.Cutoff, &b.MeanTime, &b.Ports, &b.Present, &b.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get bundle: %w", err)
	}
	return &b, nil
}

// where builds the shared filter clause.
func where(filter *dto.BundleFilter) (string, []interface{}) {
	clause := " WHERE 1=1"
	args := []interface{}{}
	if filter == nil {
		return clause, args
	}

	if filter.Session != "" {
		clause += " AND b.session = ?"
		args = append(args, filter.Session)
	}

	if filter.Port != nil {
		clause += " AND EXISTS (SELECT 1 FROM frames f WHERE f.bundle_id = b.id AND f.port = ?)"
		args = append(args, *filter.Port)
	}

	if !filter.After.IsZero() {
		clause += " AND b.cutoff >= ?"
		args = append(args, filter.After.UTC())
	}

	if !filter.Before.IsZero() {
		clause += " AND b.cutoff <= ?"
		args = append(args, filter.Before.UTC())
	}

	return clause, args
}

// GetAll retrieves bundles based on filter criteria, newest first.
func (r *BundleRepository) GetAll(filter *dto.BundleFilter) ([]model.Bundle, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	clause, args := where(filter)
	query := `
		SELECT b.id, b.session, b.bundle_index, b.cutoff, b.mean_time, b.ports, b.present, b.created_at
		FROM bundles b` + clause + " ORDER BY b.cutoff DESC, b.id DESC"

	if filter != nil && filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)

		if filter.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, filter.Offset)
		}
	}

	rows, err := r.db.Conn().Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query bundles: %w", err)
	}
	defer rows.Close()

	var bundles []model.Bundle
	for rows.Next() {
		var b model.Bundle
		if err := rows.Scan(&b.ID, &b.Session, &b.Index, &b.Cutoff, &b.MeanTime, &b.Ports, &b.Present, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan bundle: %w", err)
		}
		bundles = append(bundles, b)
	}

	return bundles, rows.Err()
}

// GetTotalCount returns the total count of bundles matching the filter.
func (r *BundleRepository) GetTotalCount(filter *dto.BundleFilter) (int, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	clause, args := where(filter)
	var count int
	if err := r.db.Conn().QueryRow(`SELECT COUNT(*) FROM bundles b`+clause, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count bundles: %w", err)
	}

	return count, nil
}

// GetSessions returns the recorded session names, newest first.
func (r *BundleRepository) GetSessions() ([]string, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	rows, err := r.db.Conn().Query(`
		SELECT session FROM bundles GROUP BY session ORDER BY MAX(id) DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []string
	for rows.Next() {
		var session string
		if err := rows.Scan(&session); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

// Delete removes a bundle and its frames.
func (r *BundleRepository) Delete(id int64) error {
	r.db.Lock()
	defer r.db.Unlock()

	// First delete related frames
	if _, err := r.db.Conn().Exec(`DELETE FROM frames WHERE bundle_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete frames: %w", err)
	}

	if _, err := r.db.Conn().Exec(`DELETE FROM bundles WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete bundle: %w", err)
	}
	return nil
}

// DeleteAll removes all bundles and their frames.
func (r *BundleRepository) DeleteAll() error {
	r.db.Lock()
	defer r.db.Unlock()

	if _, err := r.db.Conn().Exec(`DELETE FROM frames`); err != nil {
		return fmt.Errorf("failed to delete frames: %w", err)
	}

	if _, err := r.db.Conn().Exec(`DELETE FROM bundles`); err != nil {
		return fmt.Errorf("failed to delete bundles: %w", err)
	}

	return nil
}
