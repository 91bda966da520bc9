package config

import (
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

// detectBuildExcludes scans projectRoot for language build manifests and
// returns glob patterns for their conventional output directories, so
// folder search doesn't crawl into build artifacts by default. Adapted
// from the teacher's build-output detector (package.json/Cargo.toml/
// pyproject.toml scanning), trimmed to the manifests logscope actually
// parses: Cargo.toml (Rust) and pyproject.toml (Python).
func detectBuildExcludes(projectRoot string) []string {
	var patterns []string
	patterns = append(patterns, detectRustExcludes(projectRoot)...)
	patterns = append(patterns, detectPythonExcludes(projectRoot)...)
	return patterns
}

func detectRustExcludes(projectRoot string) []string {
	data, err := os.ReadFile(filepath.Join(projectRoot, "Cargo.toml"))
	if err != nil {
		return nil
	}
	var cargo struct {
		Profile struct {
			Release struct {
				TargetDir string `toml:"target-dir"`
			} `toml:"release"`
		} `toml:"profile"`
	}
	if err := toml.Unmarshal(data, &cargo); err != nil {
		return nil
	}
	patterns := []string{"**/target/**"}
	if dir := cargo.Profile.Release.TargetDir; dir != "" {
		patterns = append(patterns, "**/"+dir+"/**")
	}
	return patterns
}

func detectPythonExcludes(projectRoot string) []string {
	if _, err := os.Stat(filepath.Join(projectRoot, "pyproject.toml")); err != nil {
		return nil
	}
	return []string{"**/__pycache__/**", "**/.venv/**", "**/venv/**"}
}
