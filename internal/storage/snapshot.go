package storage

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"crypto_api/internal/domain"
	"crypto_api/pkg/quant"
)

// Snapshot is a point-in-time capture of a paper account. Reserved funds
// are not captured: resting simulated orders do not survive a restart.
type Snapshot struct {
	Seq      uint64            `json:"seq"`
	TsUnix   int64             `json:"ts"`
	Venue    string            `json:"venue"`
	Balances map[string]string `json:"balances"`
}

// SnapshotManager saves and loads account snapshots as JSON files.
type SnapshotManager struct {
	dir string
}

// NewSnapshotManager creates a manager storing files in dir.
func NewSnapshotManager(dir string) *SnapshotManager {
	return &SnapshotManager{dir: dir}
}

// CreateSnapshot captures balances. Zero balances are omitted.
func CreateSnapshot(seq uint64, venue string, balances []domain.Balance, now time.Time) *Snapshot {
	snap := &Snapshot{
		Seq:      seq,
		TsUnix:   now.Unix(),
		Venue:    venue,
		Balances: make(map[string]string, len(balances)),
	}
	for _, b := range balances {
		if b.Asset == nil || b.Amount.IsZero() {
			continue
		}
		snap.Balances[b.Asset.Code()] = b.Amount.String()
	}
	return snap
}

// Amounts resolves the captured balances in registry.
func (s *Snapshot) Amounts(registry *domain.Registry) (map[*domain.Asset]quant.Monetary, error) {
	out := make(map[*domain.Asset]quant.Monetary, len(s.Balances))
	for code, raw := range s.Balances {
		v, err := quant.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("snapshot %d balance %s: %w", s.Seq, code, err)
		}
		out[registry.Asset(code)] = v
	}
	return out, nil
}

// Save writes snap to disk.
func (sm *SnapshotManager) Save(snap *Snapshot) error {
	if err := os.MkdirAll(sm.dir, 0755); err != nil {
		return fmt.Errorf("failed to create snapshot dir: %w", err)
	}

	filename := fmt.Sprintf("snapshot_%d_%d.json", snap.Seq, snap.TsUnix)
	path := filepath.Join(sm.dir, filename)

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	// Temp file plus rename keeps the replace atomic.
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}

	slog.Info("Snapshot saved",
		slog.Uint64("seq", snap.Seq),
		slog.String("path", path))
	return nil
}

type snapFile struct {
	path string
	seq  uint64
}

func (sm *SnapshotManager) list() ([]snapFile, error) {
	entries, err := os.ReadDir(sm.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read snapshot dir: %w", err)
	}

	var files []snapFile
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		var seq uint64
		var ts int64
		var tail string
		n, _ := fmt.Sscanf(entry.Name(), "snapshot_%d_%d.%s", &seq, &ts, &tail)
		if n != 3 || tail != "json" {
			continue
		}
		files = append(files, snapFile{path: filepath.Join(sm.dir, entry.Name()), seq: seq})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].seq > files[j].seq })
	return files, nil
}

// LoadLatest loads the snapshot with the highest sequence.
// Returns nil if none exists.
func (sm *SnapshotManager) LoadLatest() (*Snapshot, error) {
	files, err := sm.list()
	if err != nil || len(files) == 0 {
		return nil, err
	}

	data, err := os.ReadFile(files[0].path)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}

	slog.Info("Snapshot loaded",
		slog.Uint64("seq", snap.Seq),
		slog.String("path", files[0].path))
	return &snap, nil
}

// Cleanup removes old snapshots, keeping only the latest keepCount.
func (sm *SnapshotManager) Cleanup(keepCount int) error {
	files, err := sm.list()
	if err != nil {
		return err
	}
	if keepCount < 0 {
		keepCount = 0
	}
	for i := keepCount; i < len(files); i++ {
		if err := os.Remove(files[i].path); err != nil {
			slog.Warn("Failed to remove old snapshot", slog.String("path", files[i].path))
		} else {
			slog.Info("Removed old snapshot", slog.String("path", files[i].path))
		}
	}
	return nil
}
