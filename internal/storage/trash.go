package storage

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/starford/ansuz/internal/apperr"
	"github.com/starford/ansuz/internal/models"
)

// trashTimestamp is the collision-suffix layout appended to trashed names.
const trashTimestamp = "20060102_150405"

// Trash moves a vault file into the trash subtree, preserving its relative
// folder layout. If that trash location is occupied, a timestamp suffix is
// appended so both entries stay independently addressable. Returns the
// trash-relative path actually used.
func (f *FS) Trash(path string) (string, error) {
	rel := filepath.ToSlash(filepath.Clean(filepath.FromSlash(path)))
	if rel == TrashDir || strings.HasPrefix(rel, TrashDir+"/") {
		return "", fmt.Errorf("storage: trash %s: already trashed", path)
	}
	absSrc, err := f.safePath(rel)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(absSrc); err != nil {
		return "", fmt.Errorf("storage: trash %s: %w", path, apperr.ErrNotFound)
	}

	destRel := rel
	absDest, err := f.safePath(TrashDir + "/" + destRel)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(absDest); err == nil {
		destRel = suffixPath(rel, time.Now())
		absDest, err = f.safePath(TrashDir + "/" + destRel)
		if err != nil {
			return "", err
		}
		// Same-second double collision: fall back to a counter.
		for n := 1; ; n++ {
			if _, statErr := os.Stat(absDest); statErr != nil {
				break
			}
			ext := filepath.Ext(destRel)
			destRel = strings.TrimSuffix(destRel, ext) + fmt.Sprintf("_%d", n) + ext
			absDest, err = f.safePath(TrashDir + "/" + destRel)
			if err != nil {
				return "", err
			}
		}
	}

	if err := os.MkdirAll(filepath.Dir(absDest), 0o755); err != nil {
		return "", fmt.Errorf("storage: trash mkdir: %w", err)
	}
	if err := os.Rename(absSrc, absDest); err != nil {
		return "", fmt.Errorf("storage: trash move: %w", err)
	}
	return destRel, nil
}

// suffixPath appends _YYYYMMDD_HHMMSS before the extension.
func suffixPath(rel string, now time.Time) string {
	ext := filepath.Ext(rel)
	return strings.TrimSuffix(rel, ext) + "_" + now.Format(trashTimestamp) + ext
}

// Restore moves a trash entry back to its original vault location.
func (f *FS) Restore(trashPath string) (string, error) {
	rel := filepath.ToSlash(filepath.Clean(filepath.FromSlash(trashPath)))
	absSrc, err := f.safePath(TrashDir + "/" + rel)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(absSrc); err != nil {
		return "", fmt.Errorf("storage: restore %s: %w", trashPath, apperr.ErrNotFound)
	}
	absDest, err := f.safePath(rel)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(absDest); err == nil {
		return "", fmt.Errorf("storage: restore %s: %w: target exists", trashPath, apperr.ErrConflict)
	}
	if err := os.MkdirAll(filepath.Dir(absDest), 0o755); err != nil {
		return "", fmt.Errorf("storage: restore mkdir: %w", err)
	}
	if err := os.Rename(absSrc, absDest); err != nil {
		return "", fmt.Errorf("storage: restore move: %w", err)
	}
	return rel, nil
}

// ListTrash returns every trashed note, trash-relative.
func (f *FS) ListTrash() ([]models.TrashEntry, error) {
	trashRoot := filepath.Join(f.root, TrashDir)
	if _, err := os.Stat(trashRoot); err != nil {
		return nil, nil
	}
	var out []models.TrashEntry
	err := filepath.WalkDir(trashRoot, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".md") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(trashRoot, p)
		out = append(out, models.TrashEntry{
			Path:      filepath.ToSlash(rel),
			Size:      info.Size(),
			TrashedAt: info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("storage: list trash: %w", err)
	}
	return out, nil
}

// EmptyTrash permanently deletes all trashed files and their folders.
func (f *FS) EmptyTrash() (int, error) {
	trashRoot := filepath.Join(f.root, TrashDir)
	if _, err := os.Stat(trashRoot); err != nil {
		return 0, nil
	}
	count := 0
	err := filepath.WalkDir(trashRoot, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if !d.IsDir() {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("storage: empty trash: %w", err)
	}
	if err := os.RemoveAll(trashRoot); err != nil {
		return 0, fmt.Errorf("storage: empty trash: %w", err)
	}
	return count, nil
}
