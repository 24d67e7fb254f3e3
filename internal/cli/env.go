// Package cli holds flag helpers shared by the subcommands.
package cli

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

// envFileOverrideVar names an env file directly, bypassing the --env flag.
const envFileOverrideVar = "POLYLATE_ENV_FILE"

// EnvLoader resolves which .env file a subcommand loads.
type EnvLoader struct {
	value       *string
	defaultPath string
}

// AddEnvFlag registers the --env flag on fs and returns the loader bound to
// it.
func AddEnvFlag(fs *flag.FlagSet, defaultPath, description string) *EnvLoader {
	if fs == nil {
		fs = flag.CommandLine
	}
	if defaultPath == "" {
		defaultPath = ".env"
	}
	if description == "" {
		description = "Path to the .env file"
	}

	return &EnvLoader{
		value:       fs.String("env", defaultPath, description),
		defaultPath: defaultPath,
	}
}

// Load applies the first env file that resolves: the override variable, the
// flag value, its basename, then the default path. File values overwrite
// variables already present in the environment.
func (l *EnvLoader) Load() (string, error) {
	if l == nil {
		return "", fmt.Errorf("env loader is nil")
	}

	if custom := strings.TrimSpace(os.Getenv(envFileOverrideVar)); custom != "" {
		if err := godotenv.Overload(custom); err == nil {
			return custom, nil
		}
	}

	requested := l.defaultPath
	if l.value != nil && strings.TrimSpace(*l.value) != "" {
		requested = strings.TrimSpace(*l.value)
	}

	candidates := []string{requested}
	if base := filepath.Base(requested); base != "" && base != requested {
		candidates = append(candidates, base)
	}
	if requested != l.defaultPath {
		candidates = append(candidates, l.defaultPath)
	}

	for _, candidate := range candidates {
		if err := godotenv.Overload(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("failed to load env file from %s", requested)
}
