package dict

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Parse parses dictionary YAML into its raw entry list.
func Parse(data []byte) ([]Entry, error) {
	var entries []Entry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse dictionary YAML: %w", err)
	}
	return entries, nil
}

// Load reads and parses one dictionary source file.
func Load(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read dictionary file: %w", err)
	}
	entries, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return entries, nil
}

// LoadDictionary reads one or more source files, concatenates their
// entries in argument order, and resolves them into a Dictionary.
func LoadDictionary(paths ...string) (*Dictionary, error) {
	var entries []Entry
	for _, path := range paths {
		loaded, err := Load(path)
		if err != nil {
			return nil, err
		}
		entries = append(entries, loaded...)
	}
	return Resolve(entries)
}
