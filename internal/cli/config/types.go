// Package config loads sqlpreview configuration from defaults, a YAML file,
// SQLPREVIEW_ environment variables and command-line flags.
package config

import "time"

// Config holds all CLI configuration options.
type Config struct {
	Compiler  CompilerConfig `koanf:"compiler" yaml:"compiler"`
	UI        UIConfig       `koanf:"ui" yaml:"ui"`
	Preview   PreviewConfig  `koanf:"preview" yaml:"preview"`
	StatePath string         `koanf:"state_path" yaml:"state_path"`
	Verbose   bool           `koanf:"verbose" yaml:"verbose"`
	LogLevel  string         `koanf:"log_level" yaml:"log_level"`

	// ProjectRoot is the directory relative paths are resolved against.
	ProjectRoot string `koanf:"-" yaml:"-"`
}

// CompilerConfig configures the external query compiler.
type CompilerConfig struct {
	Command string        `koanf:"command" yaml:"command"`
	Args    []string      `koanf:"args" yaml:"args"`
	Timeout time.Duration `koanf:"timeout" yaml:"timeout"`
}

// UIConfig configures the preview page server.
type UIConfig struct {
	Host string `koanf:"host" yaml:"host"`
	// Port 0 picks a free port.
	Port int `koanf:"port" yaml:"port"`
}

// PreviewConfig configures the render cycle.
type PreviewConfig struct {
	Debounce time.Duration `koanf:"debounce" yaml:"debounce"`
	// Theme is used until the editor reports its colour theme.
	Theme string `koanf:"theme" yaml:"theme"`
}

// Default configuration values.
const (
	DefaultCompilerCommand = "prqlc"
	DefaultCompilerTimeout = 10 * time.Second
	DefaultHost            = "127.0.0.1"
	DefaultPort            = 0
	DefaultDebounce        = 10 * time.Millisecond
	DefaultStateFile       = ".sqlpreview/state.db"
	DefaultLogLevel        = "info"
)

// DefaultCompilerArgs are passed to the default compiler.
var DefaultCompilerArgs = []string{"compile", "--hide-signature-comment"}

// ConfigFileNames are searched, in order, in each candidate directory.
var ConfigFileNames = []string{"sqlpreview.yaml", "sqlpreview.yml", ".sqlpreview.yaml"}
