// Package envfile loads KEY=VALUE environment files and runs a command
// under the resulting environment.
package envfile

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/afero"
)

// ErrBadLine is returned for a non-empty line without "=" or with an
// empty key
var ErrBadLine = errors.New("bad line")

// Parse reads KEY=VALUE lines. The value is everything after the first
// "=", kept verbatim. Empty lines are skipped.
func Parse(r io.Reader) ([]string, error) {
	var env []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if line == "" {
			continue
		}
		key, _, ok := strings.Cut(line, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("%w %d: %q", ErrBadLine, lineNo, line)
		}
		env = append(env, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return env, nil
}

// Load parses the environment file at path
func Load(fs afero.Fs, path string) ([]string, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	env, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return env, nil
}

// Merge returns base with overrides applied; a later entry for a key
// replaces an earlier one
func Merge(base, overrides []string) []string {
	index := make(map[string]int, len(base)+len(overrides))
	merged := make([]string, 0, len(base)+len(overrides))
	for _, list := range [][]string{base, overrides} {
		for _, kv := range list {
			key, _, _ := strings.Cut(kv, "=")
			if i, ok := index[key]; ok {
				merged[i] = kv
				continue
			}
			index[key] = len(merged)
			merged = append(merged, kv)
		}
	}
	return merged
}
