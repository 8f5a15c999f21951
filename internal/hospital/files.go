package hospital

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"
)

// maxConcurrentFiles bounds parallel file parsing in a directory import.
const maxConcurrentFiles = 4

// FileBatch holds the raw records parsed from one import file.
type FileBatch struct {
	Name    string
	Records []map[string]any
	Err     error
}

// ReadDirectory parses every .csv and .json file in dir. Files are parsed
// concurrently; batches are returned in file name order. A file that fails to
// parse is reported in its batch and does not stop the others.
func ReadDirectory(ctx context.Context, dir string) ([]FileBatch, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading import directory: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".csv", ".json":
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	batches := make([]FileBatch, len(names))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentFiles)

	for i, name := range names {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			records, err := ReadFile(filepath.Join(dir, name))
			batches[i] = FileBatch{Name: name, Records: records, Err: err}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return batches, nil
}

// ReadFile parses one CSV or JSON export.
func ReadFile(path string) ([]map[string]any, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return readCSV(f)
	case ".json":
		return readJSON(f)
	default:
		return nil, fmt.Errorf("unsupported file type: %s", filepath.Base(path))
	}
}

// readCSV maps each row onto the header names. Empty cells are omitted.
func readCSV(r io.Reader) ([]map[string]any, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading CSV header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff"))
	}

	var records []map[string]any
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading CSV row: %w", err)
		}

		rec := make(map[string]any, len(header))
		for i, value := range row {
			if i >= len(header) || strings.TrimSpace(value) == "" {
				continue
			}
			rec[header[i]] = strings.TrimSpace(value)
		}
		records = append(records, rec)
	}
	return records, nil
}

// readJSON accepts an array of objects.
func readJSON(r io.Reader) ([]map[string]any, error) {
	decoder := json.NewDecoder(r)
	decoder.UseNumber()

	var records []map[string]any
	if err := decoder.Decode(&records); err != nil {
		return nil, fmt.Errorf("decoding JSON: %w", err)
	}
	return records, nil
}
