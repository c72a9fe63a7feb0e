// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package secrets loads API credentials from a directory of plain-text key files.
// The filename is the key name and the trimmed file contents are the value, so a
// deployment can drop one file per credential into .secrets/ without touching the
// config file.
//
// Supported key files: semantic-scholar-api-key, unpaywall-email.
package secrets

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Load reads every regular file in dir into a key/value map. A missing
// directory is not an error: lookups work without credentials, so Load
// returns an empty map and the caller falls through to its defaults.
// A file that cannot be read is skipped with a warning on stderr.
func Load(dir string) (map[string]string, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading secrets directory %s: %w", dir, err)
	}

	keys := make(map[string]string, len(entries))
	for _, ent := range entries {
		if ent.IsDir() || strings.HasPrefix(ent.Name(), ".") {
			continue
		}
		value, err := readKeyFile(filepath.Join(dir, ent.Name()))
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: skipping secret %s: %v\n", ent.Name(), err)
			continue
		}
		if value != "" {
			keys[ent.Name()] = value
		}
	}
	return keys, nil
}

// readKeyFile returns the trimmed contents of a single key file.
func readKeyFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
