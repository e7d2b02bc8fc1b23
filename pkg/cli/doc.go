// Package cli holds the pieces shared by svgen's commands: the context-based
// config file, directory layout, .env loading, request files, and terminal
// output.
//
// Configuration lives in ~/.svgen/<app>/config.yaml and supports multiple
// named contexts, kubectl style, each pointing at an inference endpoint with
// its own generation defaults:
//
//	cfg, err := cli.LoadConfig("svgen")
//	settings, err := cfg.Resolve("", os.Getenv)
//	req := settings.Request("a red circle")
package cli
