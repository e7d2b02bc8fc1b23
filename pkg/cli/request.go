package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadRequest decodes a YAML or JSON file into v. "-" reads stdin.
func LoadRequest(path string, v any) error {
	if path == "-" {
		return LoadRequestFrom(os.Stdin, v)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("cli: read request: %w", err)
	}
	return ParseRequest(data, path, v)
}

// LoadRequestFrom decodes r as JSON, falling back to YAML.
func LoadRequestFrom(r io.Reader, v any) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("cli: read request: %w", err)
	}
	if err := json.Unmarshal(data, v); err == nil {
		return nil
	}
	if err := yaml.Unmarshal(data, v); err != nil {
		return errors.New("cli: parse request: neither JSON nor YAML")
	}
	return nil
}

// ParseRequest decodes data by the extension of filename; unknown
// extensions try YAML, then JSON.
func ParseRequest(data []byte, filename string, v any) error {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, v); err != nil {
			return fmt.Errorf("cli: parse YAML request: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, v); err != nil {
			return fmt.Errorf("cli: parse JSON request: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, v); err != nil {
			if err := json.Unmarshal(data, v); err != nil {
				return errors.New("cli: parse request: neither YAML nor JSON")
			}
		}
	}
	return nil
}
