package storage

import (
	"os"
	"path/filepath"
	"testing"

	"camsync/internal/dto"
	"camsync/internal/logger"
	"camsync/internal/repository/sqlite"
)

func TestParseFrameFilename(t *testing.T) {
	session, bundle, port, seq, err := ParseFrameFilename(FrameFilename("20260504-080000", 12, 3, 40))
	if err != nil {
		t.Fatalf("ParseFrameFilename failed: %v", err)
	}
	if session != "20260504-080000" || bundle != 12 || port != 3 || seq != 40 {
		t.Errorf("Unexpected parts: %s %d %d %d", session, bundle, port, seq)
	}

	invalid := []string{
		"b1_p0_s1.jpg",
		"s1/b1_p0.jpg",
		"s1/b1_p0_s1.png",
		"s1/b1_p0_s1.jpg.tmp",
		"s1/notes.txt",
	}
	for _, name := range invalid {
		if _, _, _, _, err := ParseFrameFilename(name); err == nil {
			t.Errorf("Expected error for %q", name)
		}
	}
}

func TestReindex_RestoresFlushedRecordings(t *testing.T) {
	rec, db := newTestRecorder(t, 10)
	for i := uint64(0); i < 3; i++ {
		rec.AddBundle(testBundle(i, 0, 1))
	}
	rec.FlushBundles()

	// An unrelated file is reported, not indexed.
	if err := os.WriteFile(filepath.Join(rec.Dir(), "notes.txt"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	bundleRepo := sqlite.NewBundleRepository(db)
	frameRepo := sqlite.NewFrameRepository(db)

	// Everything is indexed already.
	result, err := Reindex(rec.recordingDir, bundleRepo, frameRepo, logger.NewNop())
	if err != nil {
		t.Fatalf("Reindex failed: %v", err)
	}
	if result.Bundles != 0 || result.Skipped != 1 || result.Sessions != 1 {
		t.Errorf("Unexpected result for an indexed directory: %+v", result)
	}

	if err := bundleRepo.DeleteAll(); err != nil {
		t.Fatal(err)
	}

	result, err = Reindex(rec.recordingDir, bundleRepo, frameRepo, logger.NewNop())
	if err != nil {
		t.Fatalf("Reindex failed: %v", err)
	}
	if result.Bundles != 3 || result.Frames != 6 {
		t.Errorf("Expected 3 bundles and 6 frames, got %+v", result)
	}

	bundles, err := bundleRepo.GetAll(&dto.BundleFilter{Session: "session1"})
	if err != nil {
		t.Fatalf("GetAll failed: %v", err)
	}
	if len(bundles) != 3 {
		t.Fatalf("Expected 3 bundles, got %d", len(bundles))
	}
	for _, b := range bundles {
		if b.Ports != 2 || b.Present != 2 {
			t.Errorf("Bundle %d: expected 2 of 2 ports, got %d of %d", b.Index, b.Present, b.Ports)
		}
		frames, err := frameRepo.GetByBundleID(b.ID)
		if err != nil || len(frames) != 2 {
			t.Errorf("Bundle %d: expected 2 frames, got %d (%v)", b.Index, len(frames), err)
		}
	}
}

func TestReindex_MissingDirectory(t *testing.T) {
	if _, err := Reindex(filepath.Join(t.TempDir(), "missing"), nil, nil, logger.NewNop()); err == nil {
		t.Error("Expected error for a missing directory")
	}
}
