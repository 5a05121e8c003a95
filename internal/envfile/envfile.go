// Package envfile reads and updates dotenv files.
package envfile

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Load reads each existing file into the process environment. Variables that
// are already set are never overridden, so earlier files take precedence over
// later ones. Missing files are skipped. It returns the files that were read.
func Load(paths ...string) ([]string, error) {
	var loaded []string
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return loaded, fmt.Errorf("stat %s: %w", path, err)
		}
		if err := godotenv.Load(path); err != nil {
			return loaded, fmt.Errorf("load %s: %w", path, err)
		}
		loaded = append(loaded, path)
	}
	return loaded, nil
}

// Upsert sets key=value in the dotenv file at path, creating the file if needed.
// Only the line that assigns key is rewritten, or a line is appended when none
// does; every other line is left byte for byte as it was.
func Upsert(path, key, value string) error {
	entry, err := godotenv.Marshal(map[string]string{key: value})
	if err != nil {
		return fmt.Errorf("format %s: %w", key, err)
	}

	var lines []string
	mode := fs.FileMode(0o600)
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if info, statErr := os.Stat(path); statErr == nil {
			mode = info.Mode().Perm()
		}
		lines = strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
		if len(data) == 0 {
			lines = nil
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return fmt.Errorf("read %s: %w", path, err)
	}

	out := make([]string, 0, len(lines)+1)
	replaced := false
	for _, line := range lines {
		if !assigns(line, key) {
			out = append(out, line)
			continue
		}
		// Later duplicates would shadow the new value for some readers.
		if !replaced {
			out = append(out, entry)
			replaced = true
		}
	}
	if !replaced {
		out = append(out, entry)
	}

	if err := os.WriteFile(path, []byte(strings.Join(out, "\n")+"\n"), mode); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// assigns reports whether line is a dotenv assignment of key.
func assigns(line, key string) bool {
	parsed, err := godotenv.Unmarshal(line)
	if err != nil {
		return false
	}
	_, ok := parsed[key]
	return ok
}
