package cli

import (
	"os"
	"path/filepath"
)

// Paths is the on-disk layout of an app under ~/.svgen/<app>.
type Paths struct {
	AppName string
	HomeDir string
}

// NewPaths uses the current user's home directory.
func NewPaths(appName string) (*Paths, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	return &Paths{AppName: appName, HomeDir: home}, nil
}

func (p *Paths) BaseDir() string { return filepath.Join(p.HomeDir, DefaultBaseDir) }

func (p *Paths) AppDir() string { return filepath.Join(p.BaseDir(), p.AppName) }

func (p *Paths) ConfigFile() string { return filepath.Join(p.AppDir(), DefaultConfigFile) }

func (p *Paths) CacheDir() string { return filepath.Join(p.AppDir(), "cache") }

func (p *Paths) DataDir() string { return filepath.Join(p.AppDir(), "data") }

func (p *Paths) LogDir() string { return filepath.Join(p.AppDir(), "logs") }

// KVDir holds the badger database with preferences and the artifact index.
func (p *Paths) KVDir() string { return filepath.Join(p.DataDir(), "kv") }

// ArtifactsDir holds saved SVG files.
func (p *Paths) ArtifactsDir() string { return filepath.Join(p.DataDir(), "artifacts") }

// Ensure creates the app, cache, data and log directories.
func (p *Paths) Ensure() error {
	for _, dir := range []string{p.AppDir(), p.CacheDir(), p.DataDir(), p.LogDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return nil
}
