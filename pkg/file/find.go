package file

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

// FindByExtensions walks dir and returns all files whose extension matches
// one of exts (lower-case, with leading dot). Results are sorted by path.
func FindByExtensions(dir string, exts []string) ([]string, error) {
	var found []string

	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if slices.Contains(exts, strings.ToLower(filepath.Ext(path))) {
			found = append(found, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slices.Sort(found)
	return found, nil
}

// FindOlderThan returns files under dir whose modification time is before cutoff.
func FindOlderThan(dir string, cutoff time.Time) ([]string, error) {
	var old []string

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && info.ModTime().Before(cutoff) {
			old = append(old, path)
		}
		return nil
	})

	return old, err
}
