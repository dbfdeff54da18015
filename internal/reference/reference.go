// Package reference loads reference lists of allowed combinations from YAML or
// CSV files.
package reference

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/gocarina/gocsv"
	"gopkg.in/yaml.v3"

	"github.com/Veraticus/the-rent-must-flow/internal/model"
)

// File is the YAML layout of a reference list.
type File struct {
	Combinations []model.Levels `yaml:"combinations"`
}

// Row is one CSV line of a reference list. A blank level_3 means none.
type Row struct {
	Level1 string `csv:"level_1"`
	Level2 string `csv:"level_2"`
	Level3 string `csv:"level_3"`
}

// Load reads a reference list, picking the format from the file extension.
func Load(path string) ([]model.Levels, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open reference list: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil {
			slog.Warn("Failed to close reference list", "path", path, "error", cerr)
		}
	}()

	var levels []model.Levels
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		levels, err = ReadYAML(f)
	case ".csv":
		levels, err = ReadCSV(f)
	default:
		return nil, fmt.Errorf("unsupported reference list format %q", ext)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	slog.Debug("Loaded reference list", "path", path, "combinations", len(levels))
	return levels, nil
}

// ReadYAML decodes a `combinations:` document.
func ReadYAML(r io.Reader) ([]model.Levels, error) {
	var file File
	if err := yaml.NewDecoder(r).Decode(&file); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to parse YAML reference list: %w", err)
	}

	levels := make([]model.Levels, 0, len(file.Combinations))
	for _, l := range file.Combinations {
		levels = append(levels, l.Normalize())
	}
	return levels, nil
}

// ReadCSV decodes a list with a level_1,level_2,level_3 header.
func ReadCSV(r io.Reader) ([]model.Levels, error) {
	var rows []Row
	if err := gocsv.Unmarshal(r, &rows); err != nil {
		return nil, fmt.Errorf("failed to parse CSV reference list: %w", err)
	}

	levels := make([]model.Levels, 0, len(rows))
	for _, row := range rows {
		levels = append(levels, model.Levels{
			Level1: row.Level1,
			Level2: row.Level2,
			Level3: model.Level3(row.Level3),
		}.Normalize())
	}
	return levels, nil
}

// WriteCSV encodes combinations in the format ReadCSV accepts.
func WriteCSV(w io.Writer, combinations []model.AllowedCombination) error {
	rows := make([]Row, 0, len(combinations))
	for _, c := range combinations {
		rows = append(rows, Row{
			Level1: c.Levels.Level1,
			Level2: c.Levels.Level2,
			Level3: c.Levels.Level3.String(),
		})
	}
	if err := gocsv.Marshal(rows, w); err != nil {
		return fmt.Errorf("failed to write combinations: %w", err)
	}
	return nil
}
