package results

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/CodeMonkeyCybersecurity/aasprobe/internal/aggregate"
	"github.com/CodeMonkeyCybersecurity/aasprobe/internal/core"
)

const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// Encode writes v to w in the given format. Map keys come out sorted in both
// formats.
func Encode(w io.Writer, format string, v interface{}) error {
	switch format {
	case FormatJSON, "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		return enc.Encode(v)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unsupported output format %q", format)
	}
}

// WriteDiscovery writes discovered identities keyed by package.
func WriteDiscovery(path, format string, records []core.Record) error {
	return writeFile(path, format, aggregate.ClientsByPackage(records))
}

// WriteScopes writes approved scopes keyed by package.
func WriteScopes(path, format string, records []core.Record) error {
	return writeFile(path, format, aggregate.ScopesByPackage(records))
}

// writeFile replaces path atomically with the encoded value.
func writeFile(path, format string, v interface{}) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp output file: %w", err)
	}
	tmpName := tmp.Name()

	if err := Encode(tmp, format, v); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to encode results: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to write results: %w", err)
	}
	if err := os.Chmod(tmpName, 0600); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to set results permissions: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to save results: %w", err)
	}
	return nil
}
