// Package config provides the configuration loader for respawn.
package config

import (
	"os"
	"path/filepath"
	"time"

	"go.trai.ch/respawn/internal/core/domain"
	"go.trai.ch/respawn/internal/core/ports"
	"go.trai.ch/zerr"
	"gopkg.in/yaml.v3"
)

var _ ports.ConfigLoader = (*Loader)(nil)

// Loader implements ports.ConfigLoader using a YAML file.
type Loader struct {
	Logger ports.Logger
}

// NewLoader creates a new Loader with the given logger.
func NewLoader(logger ports.Logger) *Loader {
	return &Loader{Logger: logger}
}

// Load finds respawn.yaml in cwd or the nearest parent and returns the options
// it declares, along with the path it was read from. Without a file it returns
// the defaults and an empty path. Relative paths in the file are resolved
// against the file's directory.
func (l *Loader) Load(cwd string) (domain.Options, string, error) {
	opts := domain.Options{TranslateErrors: true}

	configPath, ok := findConfiguration(cwd)
	if !ok {
		return opts, "", nil
	}
	l.Logger.Debug("using " + configPath)

	var file Respawnfile
	if err := readAndUnmarshalYAML(configPath, &file); err != nil {
		return domain.Options{}, "", zerr.With(err, "path", configPath)
	}

	configDir := filepath.Dir(configPath)
	opts, err := apply(opts, &file, configDir)
	if err != nil {
		return domain.Options{}, "", zerr.With(err, "path", configPath)
	}
	return opts, configPath, nil
}

func findConfiguration(cwd string) (string, bool) {
	currentDir := cwd
	for {
		candidate := filepath.Join(currentDir, domain.ConfigFileName)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, true
		}

		parentDir := filepath.Dir(currentDir)
		if parentDir == currentDir {
			// Reached root
			return "", false
		}
		currentDir = parentDir
	}
}

func apply(opts domain.Options, file *Respawnfile, configDir string) (domain.Options, error) {
	opts.Root = resolvePath(configDir, file.Root)
	if file.Root == "" {
		opts.Root = configDir
	}
	opts.Watch = resolvePaths(configDir, file.Watch)
	opts.IgnoreWatch = file.IgnoreWatch
	opts.Extensions = domain.NormalizeExtensions(file.Extensions)
	opts.ExcludeDirs = file.ExcludeDirs
	opts.Ignore = file.Ignore
	opts.Only = file.Only
	opts.Target = file.Target
	opts.CacheDir = resolvePath(configDir, file.CacheDirectory)

	var err error
	if opts.Debounce, err = parseDuration("debounce", file.Debounce); err != nil {
		return opts, err
	}
	if opts.RestartTimeout, err = parseDuration("restartTimeout", file.RestartTimeout); err != nil {
		return opts, err
	}

	setBool(&opts.TranslateErrors, file.TranslateErrors)
	setBool(&opts.Clear, file.Clear)
	setBool(&opts.Respawn, file.Respawn)
	setBool(&opts.ExitChild, file.ExitChild)
	setBool(&opts.NoCache, file.NoCache)
	return opts, nil
}

// readAndUnmarshalYAML reads a YAML file and unmarshals it into the target struct.
func readAndUnmarshalYAML[T any](configPath string, target *T) error {
	// #nosec G304 -- configPath is found by walking up from the working directory
	configFile, err := os.ReadFile(configPath)
	if err != nil {
		return zerr.Wrap(err, domain.ErrConfigReadFailed.Error())
	}

	if parseErr := yaml.Unmarshal(configFile, target); parseErr != nil {
		return zerr.Wrap(parseErr, domain.ErrConfigParseFailed.Error())
	}

	return nil
}

func parseDuration(key, value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, zerr.With(zerr.Wrap(err, domain.ErrConfigParseFailed.Error()), "key", key)
	}
	return d, nil
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

func resolvePath(base, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}

func resolvePaths(base string, paths []string) []string {
	if len(paths) == 0 {
		return nil
	}
	resolved := make([]string, len(paths))
	for i, p := range paths {
		resolved[i] = resolvePath(base, p)
	}
	return resolved
}
