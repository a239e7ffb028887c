package templates

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Discover scans dir for *.yaml and *.yml manifests. Invalid manifests are
// logged and skipped so one broken file does not hide the others.
func Discover(dir string) ([]*Manifest, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var manifests []*Manifest
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}

		m, err := LoadManifest(filepath.Join(dir, entry.Name()))
		if err != nil {
			slog.Warn("Skipping invalid template", "file", entry.Name(), "error", err)
			continue
		}
		manifests = append(manifests, m)
	}

	return manifests, nil
}
