package checkpoint

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"ariadne/internal/logging"

	"go.uber.org/zap"
)

// ErrNotFound is returned by Get when no checkpoint has the given ID.
var ErrNotFound = errors.New("checkpoint: not found")

const (
	idTimeLayout = "20060102-150405"
	fileExt      = ".md"
	maxSlugLen   = 60
)

// Store owns one append-only directory of checkpoint files. IDs are
// filename stems: a UTC timestamp, the slugified label, and a numeric
// suffix when both collide.
type Store struct {
	dir    string
	logger *zap.Logger
}

// NewStore creates a store over dir. The directory is created lazily on
// the first write.
func NewStore(dir string, logger *zap.Logger) *Store {
	return &Store{dir: dir, logger: logging.OrNop(logger)}
}

// Dir returns the checkpoint directory.
func (st *Store) Dir() string {
	return st.dir
}

// Create writes the record to a new file and returns its ID. A zero
// CreatedAt is stamped with the current time; timestamps are stored at
// second precision in UTC. Existing files are never overwritten: a
// timestamp+label collision gets a monotonically increasing suffix.
func (st *Store) Create(rec Record) (string, error) {
	if strings.TrimSpace(rec.Label) == "" {
		return "", errors.New("checkpoint: label required")
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	rec.CreatedAt = rec.CreatedAt.UTC().Truncate(time.Second)

	if err := os.MkdirAll(st.dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create checkpoint directory: %w", err)
	}

	content, err := rec.encode()
	if err != nil {
		return "", err
	}

	base := rec.CreatedAt.Format(idTimeLayout) + "-" + slugify(rec.Label)
	id := base
	for n := 2; ; n++ {
		if _, err := os.Stat(st.filePath(id)); os.IsNotExist(err) {
			break
		}
		id = fmt.Sprintf("%s-%d", base, n)
	}

	if err := st.writeAtomic(st.filePath(id), content); err != nil {
		return "", err
	}
	st.logger.Debug("checkpoint written",
		zap.String("id", id), zap.String("label", rec.Label))
	return id, nil
}

// List returns all checkpoint IDs, most recent first. The timestamp
// prefix makes lexicographic order chronological.
func (st *Store) List() ([]string, error) {
	entries, err := os.ReadDir(st.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}

	var ids []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), fileExt) {
			continue
		}
		ids = append(ids, strings.TrimSuffix(e.Name(), fileExt))
	}
	sort.Sort(sort.Reverse(sort.StringSlice(ids)))
	return ids, nil
}

// Latest returns the most recent readable record and its ID, or
// (nil, "", nil) when the store is empty. A corrupt newest file is
// logged and skipped rather than hiding older checkpoints.
func (st *Store) Latest() (*Record, string, error) {
	ids, err := st.List()
	if err != nil {
		return nil, "", err
	}
	for _, id := range ids {
		rec, err := st.Get(id)
		if err != nil {
			st.logger.Warn("skipping unreadable checkpoint",
				zap.String("id", id), zap.Error(err))
			continue
		}
		return rec, id, nil
	}
	return nil, "", nil
}

// Get reads one checkpoint by ID. A missing file yields ErrNotFound.
func (st *Store) Get(id string) (*Record, error) {
	data, err := os.ReadFile(st.filePath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("checkpoint %q: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to read checkpoint %q: %w", id, err)
	}
	rec, err := decodeRecord(data)
	if err != nil {
		return nil, fmt.Errorf("checkpoint %q: %w", id, err)
	}
	return &rec, nil
}

func (st *Store) filePath(id string) string {
	return filepath.Join(st.dir, id+fileExt)
}

// writeAtomic stages the content in a temp file and renames it into
// place so readers never see a partial checkpoint.
func (st *Store) writeAtomic(path, content string) error {
	tmp, err := os.CreateTemp(st.dir, ".checkpoint-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.WriteString(content); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close checkpoint: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to place checkpoint: %w", err)
	}
	return nil
}

// slugify lowers the label to filename-safe form: runs of anything
// outside [a-z0-9] collapse to single dashes.
func slugify(label string) string {
	var b strings.Builder
	dash := true
	for _, r := range strings.ToLower(label) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		default:
			if !dash {
				b.WriteByte('-')
				dash = true
			}
		}
	}
	s := strings.TrimSuffix(b.String(), "-")
	if s == "" {
		return "checkpoint"
	}
	if len(s) > maxSlugLen {
		s = strings.TrimSuffix(s[:maxSlugLen], "-")
	}
	return s
}
