// Package envfile bootstraps the secret-bearing KEY=value file consumed by
// docker compose.
//
// The file is only ever created, never rewritten: an existing file is left
// untouched so user-entered credentials survive repeated runs. New files
// are created owner-only (0600) on platforms with POSIX permissions.
package envfile

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/joho/godotenv"

	"github.com/shinji-kodama/stackctl/internal/model"
)

// fileMode is the permission for newly created env files.
const fileMode fs.FileMode = 0o600

// Source records where the content of a newly created file came from.
type Source string

const (
	// SourceExisting means the file was already present; nothing was written.
	SourceExisting Source = "existing"

	// SourceTemplate means the template file was copied.
	SourceTemplate Source = "template"

	// SourceDefaults means the default keys were written with empty values.
	SourceDefaults Source = "defaults"
)

// Result reports what EnsureEnvFile did.
type Result struct {
	Path    string `json:"path"`
	Created bool   `json:"created"`
	Source  Source `json:"source"`
}

// EnsureEnvFile makes sure path exists.
//
// If path exists, nothing happens. Otherwise the template at templatePath
// is copied when it exists, and when it does not, defaults is written as
// KEY="" lines. Filesystem write errors are returned as *model.WriteFailure.
//
// Creation uses O_EXCL, so when two invocations race the loser observes the
// winner's file and reports Created=false.
func EnsureEnvFile(path, templatePath string, defaults []string) (Result, error) {
	if _, err := os.Stat(path); err == nil {
		return Result{Path: path, Source: SourceExisting}, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return Result{}, &model.WriteFailure{Path: path, Err: err}
	}

	content, source, err := initialContent(templatePath, defaults)
	if err != nil {
		return Result{}, err
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return Result{}, &model.WriteFailure{Path: path, Err: err}
		}
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, fileMode)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return Result{Path: path, Source: SourceExisting}, nil
		}
		return Result{}, &model.WriteFailure{Path: path, Err: err}
	}

	_, writeErr := f.Write(content)
	closeErr := f.Close()
	if writeErr == nil {
		writeErr = closeErr
	}
	if writeErr != nil {
		_ = os.Remove(path)
		return Result{}, &model.WriteFailure{Path: path, Err: writeErr}
	}

	// Pin the mode regardless of umask.
	if err := restrictPermissions(path); err != nil {
		return Result{}, &model.WriteFailure{Path: path, Err: err}
	}

	return Result{Path: path, Created: true, Source: source}, nil
}

// initialContent returns the bytes for a new env file.
func initialContent(templatePath string, defaults []string) ([]byte, Source, error) {
	if templatePath != "" {
		data, err := os.ReadFile(templatePath)
		switch {
		case err == nil:
			return data, SourceTemplate, nil
		case !errors.Is(err, fs.ErrNotExist):
			return nil, "", fmt.Errorf("failed to read env template %s: %w", templatePath, err)
		}
	}

	content, err := Render(defaults)
	if err != nil {
		return nil, "", err
	}
	return []byte(content), SourceDefaults, nil
}

// Render produces the default env file body: one KEY="" line per key,
// sorted, with a trailing newline.
func Render(keys []string) (string, error) {
	values := make(map[string]string, len(keys))
	for _, k := range keys {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		values[k] = ""
	}
	if len(values) == 0 {
		return "", nil
	}

	body, err := godotenv.Marshal(values)
	if err != nil {
		return "", fmt.Errorf("failed to render env defaults: %w", err)
	}
	return body + "\n", nil
}

// Read parses an env file. A missing file yields an empty map.
func Read(path string) (map[string]string, error) {
	values, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("failed to parse env file %s: %w", path, err)
	}
	return values, nil
}

// MissingKeys returns the required keys that are absent from the env file
// or have an empty value, sorted.
func MissingKeys(path string, required []string) ([]string, error) {
	values, err := Read(path)
	if err != nil {
		return nil, err
	}

	var missing []string
	for _, k := range required {
		if strings.TrimSpace(values[k]) == "" {
			missing = append(missing, k)
		}
	}
	sort.Strings(missing)
	return missing, nil
}
