package clip

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
)

// Library is the output directory holding rendered clips for all accounts.
type Library struct {
	Dir    string
	Logger *slog.Logger
}

// NewLibrary returns a library rooted at dir.
func NewLibrary(dir string, logger *slog.Logger) *Library {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Library{Dir: dir, Logger: logger}
}

// Path returns where the clip for ref is stored.
func (l *Library) Path(ref Ref) string {
	return filepath.Join(l.Dir, ref.Filename())
}

// List returns the rendered clips owned by accountID, ordered by content id
// and then part index. Files with foreign or unparseable names are skipped.
func (l *Library) List(accountID string) ([]Rendered, error) {
	entries, err := os.ReadDir(l.Dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read output dir: %w", err)
	}

	var clips []Rendered
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != Ext {
			continue
		}
		ref, err := ParseFilename(e.Name())
		if err != nil {
			l.Logger.Warn("skipping unrecognized clip file", "file", e.Name(), "error", err)
			continue
		}
		if ref.AccountID != accountID {
			continue
		}
		clips = append(clips, Rendered{Ref: ref, Path: filepath.Join(l.Dir, e.Name())})
	}

	sort.Slice(clips, func(i, j int) bool {
		if clips[i].ContentID != clips[j].ContentID {
			return clips[i].ContentID < clips[j].ContentID
		}
		return clips[i].Part < clips[j].Part
	})
	return clips, nil
}

// Remove deletes a published clip. A clip that is already gone is not an error.
func (l *Library) Remove(c Rendered) error {
	if err := os.Remove(c.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove clip %s: %w", c.Path, err)
	}
	return nil
}
