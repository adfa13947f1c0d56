package catalog

import (
	"encoding/xml"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"vmtest/pkg/logging"
)

// catalogFile is the on-disk XML document shape. The schema is an
// external collaborator format: consumed, not produced.
type catalogFile struct {
	XMLName xml.Name   `xml:"TestCases"`
	Tests   []TestCase `xml:"test"`
}

// Load reads every test case XML file under the given paths, in path then
// file-name order. Duplicate test names across files are rejected: the
// first occurrence wins and later ones are logged and dropped, since
// duplicate test identity would corrupt result-keyed reporting downstream.
func Load(paths []string) ([]TestCase, error) {
	var files []string
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("catalog path %s: %w", path, err)
		}
		if !info.IsDir() {
			files = append(files, path)
			continue
		}
		err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && strings.EqualFold(filepath.Ext(p), ".xml") {
				files = append(files, p)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to walk catalog directory %s: %w", path, err)
		}
	}

	var cases []TestCase
	seen := make(map[string]string) // name -> source file
	for _, file := range files {
		loaded, err := loadFile(file)
		if err != nil {
			return nil, err
		}
		for _, tc := range loaded {
			if tc.Name == "" {
				logging.Warn("Catalog", "skipping unnamed test case in %s", file)
				continue
			}
			if firstFile, dup := seen[tc.Name]; dup {
				logging.Warn("Catalog", "duplicate test case %s in %s, keeping the one from %s", tc.Name, file, firstFile)
				continue
			}
			seen[tc.Name] = file
			tc.SourceFile = file
			cases = append(cases, tc)
		}
	}

	logging.Debug("Catalog", "loaded %d test cases from %d files", len(cases), len(files))
	return cases, nil
}

func loadFile(path string) ([]TestCase, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file %s: %w", path, err)
	}

	var doc catalogFile
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse catalog file %s: %w", path, err)
	}
	return doc.Tests, nil
}
