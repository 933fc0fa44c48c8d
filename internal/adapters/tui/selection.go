package tui

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

const (
	selectionDirPerm  = 0o750
	selectionFilePerm = 0o640
)

// Selection is the persisted unit filter.
type Selection struct {
	SavedAt time.Time `json:"saved_at"`
	Units   []string  `json:"units"`
}

// LoadSelection reads the saved units. A missing file yields no units and no
// error, meaning every unit is included.
func LoadSelection(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read selection: %w", err)
	}
	var s Selection
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode selection %s: %w", path, err)
	}
	return s.Units, nil
}

// SaveSelection replaces the file at path with units.
func SaveSelection(path string, units []string) error {
	if err := os.MkdirAll(filepath.Dir(path), selectionDirPerm); err != nil {
		return fmt.Errorf("create selection dir: %w", err)
	}
	if units == nil {
		units = []string{}
	}
	data, err := json.MarshalIndent(Selection{SavedAt: time.Now().UTC(), Units: units}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode selection: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, selectionFilePerm); err != nil {
		return fmt.Errorf("write selection: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace selection: %w", err)
	}
	return nil
}
