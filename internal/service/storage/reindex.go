package storage

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"time"

	"camsync/internal/logger"
	"camsync/internal/model"
	"camsync/internal/repository"
)

// ParseFrameFilename splits a name produced by FrameFilename.
func ParseFrameFilename(name string) (session string, bundle uint64, port int, sequence uint64, err error) {
	session, base := path.Split(filepath.ToSlash(name))
	session = path.Clean(session)
	if session == "." || session == "/" {
		return "", 0, 0, 0, fmt.Errorf("frame %q has no session directory", name)
	}

	var tail string
	n, _ := fmt.Sscanf(base, "b%d_p%d_s%d%s", &bundle, &port, &sequence, &tail)
	if n != 4 || tail != ".jpg" {
		return "", 0, 0, 0, fmt.Errorf("frame %q does not match b<bundle>_p<port>_s<seq>.jpg", name)
	}
	return session, bundle, port, sequence, nil
}

// ReindexResult summarizes a Reindex run.
type ReindexResult struct {
	Sessions int
	Bundles  int
	Frames   int
	Skipped  int
}

type bundleKey struct {
	session string
	index   uint64
}

// Reindex scans recordingDir for recorded frames and indexes every bundle
// that the database does not know yet. The capture time of a frame is not
// stored in the file, so its modification time stands in for it.
func Reindex(recordingDir string, bundleRepo repository.BundleRepository, frameRepo repository.FrameRepository, logger *logger.Logger) (ReindexResult, error) {
	var result ReindexResult

	sessions, err := os.ReadDir(recordingDir)
	if err != nil {
		return result, fmt.Errorf("failed to read recording directory: %w", err)
	}

	for _, dir := range sessions {
		if !dir.IsDir() {
			continue
		}
		result.Sessions++

		files, err := os.ReadDir(filepath.Join(recordingDir, dir.Name()))
		if err != nil {
			logger.Error("Failed to read session %s: %v", dir.Name(), err)
			continue
		}

		bundles := make(map[bundleKey][]model.Frame)
		ports := make(map[int]bool)
		for _, file := range files {
			if file.IsDir() {
				continue
			}
			filename := path.Join(dir.Name(), file.Name())
			session, index, port, sequence, err := ParseFrameFilename(filename)
			if err != nil {
				logger.Warning("Skipping %s: %v", filename, err)
				result.Skipped++
				continue
			}

			info, err := file.Info()
			if err != nil {
				logger.Warning("Failed to get info for %s: %v", filename, err)
				result.Skipped++
				continue
			}

			key := bundleKey{session: session, index: index}
			bundles[key] = append(bundles[key], model.Frame{
				Port:      port,
				Sequence:  int64(sequence),
				Timestamp: info.ModTime().UTC(),
				Filename:  filename,
				FilePath:  filepath.Join(recordingDir, dir.Name(), file.Name()),
				FileSize:  info.Size(),
			})
			ports[port] = true
		}

		keys := make([]bundleKey, 0, len(bundles))
		for key := range bundles {
			keys = append(keys, key)
		}
		sort.Slice(keys, func(i, j int) bool { return keys[i].index < keys[j].index })

		for _, key := range keys {
			frames := bundles[key]
			known, err := frameRepo.GetByFilename(frames[0].Filename)
			if err != nil {
				return result, err
			}
			if known != nil {
				continue
			}

			var cutoff time.Time
			var sum time.Duration
			for _, f := range frames {
				if f.Timestamp.After(cutoff) {
					cutoff = f.Timestamp
				}
				sum += f.Timestamp.Sub(frames[0].Timestamp)
			}
			mean := frames[0].Timestamp.Add(sum / time.Duration(len(frames)))

			id, err := bundleRepo.Insert(&model.Bundle{
				Session:  key.session,
				Index:    int64(key.index),
				Cutoff:   cutoff,
				MeanTime: mean,
				Ports:    len(ports),
				Present:  len(frames),
			})
			if err != nil {
				logger.Error("Failed to index bundle %d of %s: %v", key.index, key.session, err)
				result.Skipped += len(frames)
				continue
			}
			for i := range frames {
				frames[i].BundleID = id
			}
			if err := frameRepo.InsertBatch(frames); err != nil {
				return result, fmt.Errorf("failed to index frames of bundle %d: %w", key.index, err)
			}

			result.Bundles++
			result.Frames += len(frames)
		}
	}

	return result, nil
}
