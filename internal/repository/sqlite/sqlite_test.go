package sqlite

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"camsync/internal/dto"
	"camsync/internal/model"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

var base = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

// seed records n bundles for session, each holding frames of the given ports.
func seed(t *testing.T, db *DB, session string, n int, ports ...int) []int64 {
	t.Helper()
	bundles := NewBundleRepository(db)
	frames := NewFrameRepository(db)

	var ids []int64
	for i := 0; i < n; i++ {
		cutoff := base.Add(time.Duration(i) * 33 * time.Millisecond)
		id, err := bundles.Insert(&model.Bundle{
			Session:  session,
			Index:    int64(i),
			Cutoff:   cutoff,
			MeanTime: cutoff.Add(-10 * time.Millisecond),
			Ports:    2,
			Present:  len(ports),
		})
		if err != nil {
			t.Fatalf("Failed to insert bundle: %v", err)
		}
		ids = append(ids, id)

		var batch []model.Frame
		for _, p := range ports {
			name := fmt.Sprintf("%s_b%d_p%d.jpg", session, i, p)
			batch = append(batch, model.Frame{
				BundleID:  id,
				Port:      p,
				Sequence:  int64(i),
				Timestamp: cutoff.Add(-time.Millisecond),
				Filename:  name,
				FilePath:  "/recordings/" + name,
				FileSize:  100,
				Features:  p,
			})
		}
		if err := frames.InsertBatch(batch); err != nil {
			t.Fatalf("Failed to insert frames: %v", err)
		}
	}
	return ids
}

func TestDatabase_Connection(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := New(dbPath)
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	defer db.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("Database file should exist")
	}

	// Migrating twice must be harmless
	if err := db.migrate(); err != nil {
		t.Errorf("Second migration failed: %v", err)
	}
}

func TestBundleRepository_InsertAndGet(t *testing.T) {
	db := newTestDB(t)
	ids := seed(t, db, "s1", 1, 0, 1)
	repo := NewBundleRepository(db)

	b, err := repo.GetByID(ids[0])
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if b == nil {
		t.Fatal("Expected bundle, got nil")
	}
	if b.Session != "s1" || b.Index != 0 || b.Present != 2 {
		t.Errorf("Unexpected bundle: %+v", b)
	}
	if !b.Cutoff.Equal(base) {
		t.Errorf("Expected cutoff %v, got %v", base, b.Cutoff)
	}

	missing, err := repo.GetByID(9999)
	if err != nil || missing != nil {
		t.Errorf("Expected nil for missing bundle, got %v (%v)", missing, err)
	}
}

func TestBundleRepository_UniqueIndexPerSession(t *testing.T) {
	db := newTestDB(t)
	repo := NewBundleRepository(db)

	b := &model.Bundle{Session: "s1", Index: 3, Cutoff: base, MeanTime: base}
	if _, err := repo.Insert(b); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if _, err := repo.Insert(b); err == nil {
		t.Error("Expected error for a duplicate bundle index in one session")
	}

	b.Session = "s2"
	if _, err := repo.Insert(b); err != nil {
		t.Errorf("Same index in another session should be allowed: %v", err)
	}
}

func TestBundleRepository_Filters(t *testing.T) {
	db := newTestDB(t)
	seed(t, db, "s1", 5, 0, 1)
	seed(t, db, "s2", 3, 1)
	repo := NewBundleRepository(db)

	port0 := 0
	tests := []struct {
		name     string
		filter   *dto.BundleFilter
		expected int
	}{
		{"all", &dto.BundleFilter{}, 8},
		{"nil filter", nil, 8},
		{"session", &dto.BundleFilter{Session: "s2"}, 3},
		{"port present", &dto.BundleFilter{Port: &port0}, 5},
		{"after", &dto.BundleFilter{After: base.Add(60 * time.Millisecond)}, 4},
		{"before", &dto.BundleFilter{Session: "s1", Before: base.Add(40 * time.Millisecond)}, 2},
	}

	for _, tt := range tests {
		count, err := repo.GetTotalCount(tt.filter)
		if err != nil {
			t.Fatalf("%s: GetTotalCount failed: %v", tt.name, err)
		}
		if count != tt.expected {
			t.Errorf("%s: expected count %d, got %d", tt.name, tt.expected, count)
		}

		bundles, err := repo.GetAll(tt.filter)
		if err != nil {
			t.Fatalf("%s: GetAll failed: %v", tt.name, err)
		}
		if len(bundles) != tt.expected {
			t.Errorf("%s: expected %d bundles, got %d", tt.name, tt.expected, len(bundles))
		}
	}
}

func TestBundleRepository_Paging(t *testing.T) {
	db := newTestDB(t)
	seed(t, db, "s1", 5, 0)
	repo := NewBundleRepository(db)

	page, err := repo.GetAll(&dto.BundleFilter{Limit: 2, Offset: 2})
	if err != nil {
		t.Fatalf("GetAll failed: %v", err)
	}
	if len(page) != 2 {
		t.Fatalf("Expected 2 bundles, got %d", len(page))
	}
	// Newest first: indices 4 3 | 2 1 | 0
	if page[0].Index != 2 || page[1].Index != 1 {
		t.Errorf("Expected indices 2 and 1, got %d and %d", page[0].Index, page[1].Index)
	}
}

func TestBundleRepository_SessionsAndDelete(t *testing.T) {
	db := newTestDB(t)
	ids := seed(t, db, "s1", 2, 0, 1)
	seed(t, db, "s2", 1, 0)
	bundles := NewBundleRepository(db)
	frames := NewFrameRepository(db)

	sessions, err := bundles.GetSessions()
	if err != nil {
		t.Fatalf("GetSessions failed: %v", err)
	}
	if len(sessions) != 2 || sessions[0] != "s2" {
		t.Errorf("Expected [s2 s1], got %v", sessions)
	}

	if err := bundles.Delete(ids[0]); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	left, _ := frames.GetByBundleID(ids[0])
	if len(left) != 0 {
		t.Errorf("Frames of a deleted bundle should be gone, got %d", len(left))
	}

	if err := bundles.DeleteAll(); err != nil {
		t.Fatalf("DeleteAll failed: %v", err)
	}
	count, _ := bundles.GetTotalCount(nil)
	if count != 0 {
		t.Errorf("Expected no bundles after DeleteAll, got %d", count)
	}
}

func TestFrameRepository(t *testing.T) {
	db := newTestDB(t)
	ids := seed(t, db, "s1", 2, 1, 0)
	repo := NewFrameRepository(db)

	frames, err := repo.GetByBundleID(ids[1])
	if err != nil {
		t.Fatalf("GetByBundleID failed: %v", err)
	}
	if len(frames) != 2 || frames[0].Port != 0 || frames[1].Port != 1 {
		t.Fatalf("Expected frames for ports 0 and 1 in order, got %+v", frames)
	}

	f, err := repo.GetByFilename(frames[0].Filename)
	if err != nil || f == nil || f.ID != frames[0].ID {
		t.Errorf("GetByFilename returned %+v (%v)", f, err)
	}
	if f, err := repo.GetByFilename("nope.jpg"); err != nil || f != nil {
		t.Errorf("Expected nil for a missing frame, got %+v (%v)", f, err)
	}

	size, err := repo.GetDirectorySize()
	if err != nil || size != 400 {
		t.Errorf("Expected 400 bytes, got %d (%v)", size, err)
	}

	if err := repo.DeleteByBundleID(ids[0]); err != nil {
		t.Fatalf("DeleteByBundleID failed: %v", err)
	}
	size, _ = repo.GetDirectorySize()
	if size != 200 {
		t.Errorf("Expected 200 bytes left, got %d", size)
	}

	single := &model.Frame{BundleID: ids[0], Port: 0, Timestamp: base, Filename: "single.jpg", FilePath: "/single.jpg"}
	if _, err := repo.Insert(single); err != nil {
		t.Errorf("Insert failed: %v", err)
	}
	if _, err := repo.Insert(single); err == nil {
		t.Error("Expected error for a duplicate filename")
	}
}
