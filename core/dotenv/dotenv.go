// Package dotenv loads a .env file into the ambient environment when a lift
// opts in via load_dotenv. The nearest .env on the walk from the working
// directory up to the filesystem root wins, and ambient variables always beat
// file entries.
package dotenv

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/joho/godotenv"
)

// Find walks from dir toward the filesystem root and returns the path of the
// first .env file found, or "" when there is none.
func Find(dir string) (string, error) {
	current, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", dir, err)
	}
	for {
		candidate := filepath.Join(current, ".env")
		info, err := os.Stat(candidate)
		if err == nil && info.Mode().IsRegular() {
			return candidate, nil
		}
		if err != nil && !os.IsNotExist(err) {
			return "", fmt.Errorf("probe %s: %w", candidate, err)
		}
		parent := filepath.Dir(current)
		if parent == current {
			return "", nil
		}
		current = parent
	}
}

// Parse reads one .env file and returns its variables in name order. Parse
// errors are fatal to the caller; a half-loaded environment is worse than a
// clear failure.
func Parse(path string) ([]string, map[string]string, error) {
	parsed, err := godotenv.Read(path)
	if err != nil {
		return nil, nil, fmt.Errorf("parse %s: %w", path, err)
	}
	names := make([]string, 0, len(parsed))
	for name := range parsed {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, parsed, nil
}

// Load finds the nearest .env above dir and exports its variables, skipping
// any that are already set in the ambient environment. It returns the path of
// the loaded file, or "" when no .env exists.
func Load(dir string) (string, error) {
	path, err := Find(dir)
	if err != nil || path == "" {
		return "", err
	}
	names, values, err := Parse(path)
	if err != nil {
		return "", err
	}
	for _, name := range names {
		if _, present := os.LookupEnv(name); present {
			continue
		}
		if err := os.Setenv(name, values[name]); err != nil {
			return "", fmt.Errorf("set %s from %s: %w", name, path, err)
		}
	}
	return path, nil
}
