package playlist

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// scanDirectory returns the sorted, absolute paths of every file in dir
// whose name ends (case-insensitively) in ".mp3". If dir does not exist it
// is created and an empty slice is returned.
func scanDirectory(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			if mkErr := os.MkdirAll(dir, 0o755); mkErr != nil {
				return nil, mkErr
			}
			return nil, nil
		}
		return nil, err
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if !strings.HasSuffix(strings.ToLower(e.Name()), ".mp3") {
			continue
		}
		abs, err := filepath.Abs(filepath.Join(dir, e.Name()))
		if err != nil {
			abs = filepath.Join(dir, e.Name())
		}
		paths = append(paths, abs)
	}

	sort.Strings(paths)
	return paths, nil
}
