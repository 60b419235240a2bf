// Package resources enumerates the servable sites under the resources dir.
package resources

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
)

// IndexFile marks a directory as servable.
const IndexFile = "index.html"

// List returns the sorted names of dir's sub-directories that contain an
// index file. A missing dir yields an empty list.
func List(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []string{}, nil
		}
		return nil, err
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		info, err := os.Stat(filepath.Join(dir, e.Name(), IndexFile))
		if err != nil || info.IsDir() {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}
