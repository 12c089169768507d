package tui

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"
)

const maxRecent = 10

type RecentEntry struct {
	Path     string    `json:"path"`
	Levels   []string  `json:"levels,omitempty"`
	OpenedAt time.Time `json:"opened_at"`
}

func recentFilePath() (string, error) {
	cfg, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(cfg, "geodrill", "recent.json"), nil
}

// LoadRecent returns the recently opened data dirs, newest first. A
// missing or unreadable file yields no entries.
func LoadRecent() []RecentEntry {
	path, err := recentFilePath()
	if err != nil {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var entries []RecentEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil
	}
	return entries
}

// SaveRecent moves dataDir to the front of the recent list.
func SaveRecent(dataDir string, levels []string) error {
	abs := absDir(dataDir)
	entries := LoadRecent()
	filtered := make([]RecentEntry, 0, len(entries)+1)
	filtered = append(filtered, RecentEntry{Path: abs, Levels: levels, OpenedAt: time.Now()})
	for _, e := range entries {
		if e.Path != abs {
			filtered = append(filtered, e)
		}
	}
	if len(filtered) > maxRecent {
		filtered = filtered[:maxRecent]
	}
	return writeRecent(filtered)
}

// RemoveRecent drops dataDir from the recent list.
func RemoveRecent(dataDir string) error {
	abs := absDir(dataDir)
	entries := LoadRecent()
	kept := slices.DeleteFunc(entries, func(e RecentEntry) bool { return e.Path == abs })
	if len(kept) == len(entries) {
		return nil
	}
	return writeRecent(kept)
}

func absDir(dir string) string {
	if abs, err := filepath.Abs(dir); err == nil {
		return abs
	}
	return dir
}

func writeRecent(entries []RecentEntry) error {
	path, err := recentFilePath()
	if err != nil {
		return err
	}
	if entries == nil {
		entries = []RecentEntry{}
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}
