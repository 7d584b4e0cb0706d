// Package scaffold writes a starter tally.yml.
package scaffold

import (
	"embed"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dyluth/tally/internal/config"
)

//go:embed templates/*
var templatesFS embed.FS

// Initialize writes tally.yml into dir. If force is true an existing file
// is replaced.
func Initialize(dir string, force bool) (string, error) {
	path := filepath.Join(dir, config.DefaultFile)

	if !force {
		if err := CheckExisting(dir); err != nil {
			return "", err
		}
	}

	content, err := templatesFS.ReadFile("templates/tally.yml.tmpl")
	if err != nil {
		return "", fmt.Errorf("failed to read tally.yml template: %w", err)
	}

	if err := os.WriteFile(path, content, 0644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}

	// The template must load cleanly, environment overrides included.
	if _, err := config.Load(path); err != nil {
		return "", fmt.Errorf("created %s is invalid: %w", path, err)
	}

	return path, nil
}

// CheckExisting returns an error if dir already holds a tally.yml.
func CheckExisting(dir string) error {
	path := filepath.Join(dir, config.DefaultFile)
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("project already initialized\n\nFound existing: %s\n\nUse 'tally init --force' to overwrite it", path)
	}
	return nil
}

// PrintSuccess prints the success message with next steps.
func PrintSuccess(w io.Writer, path string) {
	fmt.Fprintln(w, "\n✅ Successfully initialized tally!")
	fmt.Fprintf(w, "\nCreated:\n  ✓ %s\n", path)
	fmt.Fprintln(w, "\nNext steps:")
	fmt.Fprintln(w, "  1. Point redis.url at your Redis server")
	fmt.Fprintln(w, "  2. Register locations: tally location add A1")
	fmt.Fprintln(w, "  3. Run 'tally serve' and open the counting UI")
}
