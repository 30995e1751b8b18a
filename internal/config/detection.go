package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// SecretsFile represents a detected client secrets file
type SecretsFile struct {
	Path   string
	Format string
}

// DetectionOptions controls client secrets detection
type DetectionOptions struct {
	Dirs  []string // Searched in order
	Names []string // Exact file names tried in each directory
	Glob  bool     // Also match client_secret_*.json as downloaded from the console
}

// DefaultOptions searches the working directory, then the drivelink config directory
func DefaultOptions() *DetectionOptions {
	dirs := []string{"."}
	if dir, err := Dir(); err == nil {
		dirs = append(dirs, dir)
	}
	return &DetectionOptions{
		Dirs: dirs,
		Names: []string{
			"client_secret.json",
			"client_secrets.json",
			"client_secret.yaml",
			"client_secret.yml",
			"client_secret.toml",
		},
		Glob: true,
	}
}

// FindClientSecretsFile returns the first client secrets file found
func FindClientSecretsFile(opts *DetectionOptions) (*SecretsFile, error) {
	if opts == nil {
		opts = DefaultOptions()
	}

	candidates := buildCandidateList(opts)
	for _, candidate := range candidates {
		if info, err := os.Stat(candidate.Path); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}

	return nil, fmt.Errorf("no client secrets file found. Looked for: %v", extractPaths(candidates))
}

func buildCandidateList(opts *DetectionOptions) []*SecretsFile {
	var candidates []*SecretsFile

	for _, dir := range opts.Dirs {
		for _, name := range opts.Names {
			path := filepath.Join(dir, name)
			if !containsPath(candidates, path) {
				candidates = append(candidates, &SecretsFile{Path: path, Format: detectFormat(path)})
			}
		}

		if opts.Glob {
			matches, _ := filepath.Glob(filepath.Join(dir, "client_secret_*.json"))
			sort.Strings(matches)
			for _, path := range matches {
				if !containsPath(candidates, path) {
					candidates = append(candidates, &SecretsFile{Path: path, Format: "json"})
				}
			}
		}
	}

	return candidates
}

func detectFormat(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return "yaml"
	case ".json":
		return "json"
	case ".toml":
		return "toml"
	default:
		// Handle files without extensions or special cases
		name := filepath.Base(path)
		if strings.Contains(name, "yaml") {
			return "yaml"
		}
		if strings.Contains(name, "json") {
			return "json"
		}
		return "unknown"
	}
}

func containsPath(candidates []*SecretsFile, path string) bool {
	for _, candidate := range candidates {
		if candidate.Path == path {
			return true
		}
	}
	return false
}

func extractPaths(candidates []*SecretsFile) []string {
	var paths []string
	for _, candidate := range candidates {
		paths = append(paths, candidate.Path)
	}
	return paths
}
