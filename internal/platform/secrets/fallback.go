package secrets

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
)

// fallbackFile serves secrets from a local "secret://name=value" file on developer machines.
// The file is read once, on first use.
type fallbackFile struct {
	path string

	once   sync.Once
	values map[string]string
	err    error
}

func (f *fallbackFile) lookup(ref reference) (string, error) {
	f.once.Do(f.read)
	if f.err != nil {
		return "", f.err
	}
	value, ok := f.values[ref.canonical]
	if !ok {
		return "", fmt.Errorf("secrets: %s not found in fallback file", ref.canonical)
	}
	return value, nil
}

func (f *fallbackFile) read() {
	f.values = make(map[string]string)
	if f.path == "" {
		return
	}
	file, err := os.Open(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return
	}
	if err != nil {
		f.err = fmt.Errorf("secrets: open fallback file: %w", err)
		return
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || line[0] == '#' {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		if ref, err := parseReference(key); err == nil {
			f.values[ref.canonical] = strings.TrimSpace(value)
		}
	}
	if err := scanner.Err(); err != nil {
		f.err = fmt.Errorf("secrets: read fallback file: %w", err)
	}
}
