package cli

import (
	"errors"
	"io/fs"

	"github.com/joho/godotenv"
)

// DefaultEnvFiles are loaded by LoadEnv when no files are given. Earlier
// files win, and variables already in the environment are never replaced.
var DefaultEnvFiles = []string{".env.local", ".env"}

// LoadEnv loads the existing files among files into the process
// environment. Missing files are skipped.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = DefaultEnvFiles
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}
	return nil
}
