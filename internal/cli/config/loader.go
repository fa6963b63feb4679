package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// loggerKey and configKey store values in the command context.
type (
	loggerKey struct{}
	configKey struct{}
)

// EnvPrefix prefixes every environment variable read.
const EnvPrefix = "SQLPREVIEW_"

// maxUpwardSearchLevels limits how far up the directory tree to search for config files.
const maxUpwardSearchLevels = 10

// sections are the nested config groups; env vars address them as
// SQLPREVIEW_<SECTION>_<KEY>.
var sections = []string{"compiler", "ui", "preview"}

// flagKeys maps flag names to config keys where they differ.
var flagKeys = map[string]string{
	"state":     "state_path",
	"log-level": "log_level",
	"compiler":  "compiler.command",
	"timeout":   "compiler.timeout",
	"host":      "ui.host",
	"port":      "ui.port",
	"theme":     "preview.theme",
	"debounce":  "preview.debounce",
}

// configExistsIn returns the config file in dir, if any.
func configExistsIn(dir string) string {
	for _, name := range ConfigFileNames {
		candidate := filepath.Join(dir, name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}

// findConfigUpward searches upward from startDir for a config file.
// Returns empty string if not found within maxUpwardSearchLevels.
func findConfigUpward(startDir string) string {
	dir := startDir
	for i := 0; i < maxUpwardSearchLevels; i++ {
		if found := configExistsIn(dir); found != "" {
			return found
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}

// resolvePathRelativeTo resolves a path relative to baseDir if it's not absolute.
// Returns the path unchanged if it's empty, :memory: or already absolute.
func resolvePathRelativeTo(path, baseDir string) string {
	if path == "" || path == ":memory:" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}

// envKey turns SQLPREVIEW_COMPILER_COMMAND into compiler.command and
// SQLPREVIEW_STATE_PATH into state_path.
func envKey(s string) string {
	key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	for _, section := range sections {
		if rest, ok := strings.CutPrefix(key, section+"_"); ok {
			return section + "." + rest
		}
	}
	return key
}

// flagKey returns the config key of a flag.
func flagKey(name string) string {
	if key, ok := flagKeys[name]; ok {
		return key
	}
	return strings.ReplaceAll(name, "-", "_")
}

func defaults() map[string]any {
	return map[string]any{
		"compiler.command": DefaultCompilerCommand,
		"compiler.args":    append([]string(nil), DefaultCompilerArgs...),
		"compiler.timeout": DefaultCompilerTimeout,
		"ui.host":          DefaultHost,
		"ui.port":          DefaultPort,
		"preview.debounce": DefaultDebounce,
		"preview.theme":    "",
		"state_path":       DefaultStateFile,
		"verbose":          false,
		"log_level":        DefaultLogLevel,
	}
}

// Load loads configuration from file, environment variables, and flags.
// Precedence (highest to lowest): flags > env vars > config file > defaults.
// An empty cfgFile searches upward from the working directory. The returned
// path is the config file used, or "".
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, string, error) {
	k := koanf.New(".")

	// 1. Defaults
	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, "", fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Config file
	cwd, err := os.Getwd()
	if err != nil {
		cwd = "."
	}
	projectRoot := cwd
	if cfgFile == "" {
		cfgFile = findConfigUpward(cwd)
	}
	if cfgFile != "" {
		if err := k.Load(file.Provider(cfgFile), yaml.Parser()); err != nil {
			return nil, "", fmt.Errorf("error reading config file %s: %w", cfgFile, err)
		}
		if abs, err := filepath.Abs(cfgFile); err == nil {
			projectRoot = filepath.Dir(abs)
		}
	}

	// 3. Environment variables
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, "", fmt.Errorf("failed to load env vars: %w", err)
	}

	// 4. Flags, only those explicitly set
	var flagStatePath string
	if flags != nil {
		if f := flags.Lookup("state"); f != nil && f.Changed {
			flagStatePath, _ = filepath.Abs(f.Value.String())
		}
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			if !f.Changed {
				return "", nil
			}
			return flagKey(f.Name), posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, "", fmt.Errorf("failed to load flags: %w", err)
		}
	}

	// 5. Decode
	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, "", fmt.Errorf("unable to decode config: %w", err)
	}
	cfg.ProjectRoot = projectRoot

	// Flag paths are relative to the working directory, the rest to the
	// project root.
	if flagStatePath != "" && cfg.StatePath != ":memory:" {
		cfg.StatePath = flagStatePath
	} else {
		cfg.StatePath = resolvePathRelativeTo(cfg.StatePath, projectRoot)
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, cfgFile, nil
}

// Default returns the configuration used when nothing is loaded.
func Default() *Config {
	return &Config{
		Compiler: CompilerConfig{
			Command: DefaultCompilerCommand,
			Args:    append([]string(nil), DefaultCompilerArgs...),
			Timeout: DefaultCompilerTimeout,
		},
		UI:        UIConfig{Host: DefaultHost, Port: DefaultPort},
		Preview:   PreviewConfig{Debounce: DefaultDebounce},
		StatePath: DefaultStateFile,
		LogLevel:  DefaultLogLevel,
	}
}

// WithLogger stores logger in ctx.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// GetLogger retrieves the logger from the command context.
func GetLogger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey{}).(*slog.Logger); ok {
		return l
	}
	return slog.New(slog.DiscardHandler)
}

// WithConfig stores cfg in ctx.
func WithConfig(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configKey{}, cfg)
}

// GetConfig retrieves the config from the command context.
func GetConfig(ctx context.Context) *Config {
	if c, ok := ctx.Value(configKey{}).(*Config); ok {
		return c
	}
	return Default()
}
