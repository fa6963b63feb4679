package compiler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

// DefaultTimeout bounds a single compiler invocation.
const DefaultTimeout = 10 * time.Second

// Exec runs an external compiler executable. The source is written to the
// process's stdin and the SQL is read from stdout.
type Exec struct {
	command string
	args    []string
	timeout time.Duration
	logger  *slog.Logger
}

// ExecConfig configures an Exec compiler.
type ExecConfig struct {
	Command string
	Args    []string
	Timeout time.Duration
	Logger  *slog.Logger
}

// NewExec creates an Exec compiler.
func NewExec(cfg ExecConfig) *Exec {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	return &Exec{
		command: cfg.Command,
		args:    cfg.Args,
		timeout: cfg.Timeout,
		logger:  cfg.Logger,
	}
}

// Compile implements Compiler.
func (c *Exec) Compile(ctx context.Context, source string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, c.command, c.args...) //nolint:gosec // G204: command comes from user config
	cmd.Stdin = strings.NewReader(source)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second

	start := time.Now()
	err := cmd.Run()
	c.logger.Debug("compiler finished", "command", c.command, "duration", time.Since(start), "error", err)

	if err == nil {
		return stdout.String(), nil
	}

	if ctx.Err() != nil {
		return "", fmt.Errorf("compiler %s: %w", c.command, ctx.Err())
	}
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return "", fmt.Errorf("failed to run compiler %s: %w", c.command, err)
	}

	diags := ParseDiagnostics(stderr.Bytes())
	if len(diags) == 0 {
		diags = []Diagnostic{{Reason: exitErr.Error()}}
	}
	return "", &Error{Diagnostics: diags}
}

// errorMessages is the envelope compilers emit for a list of errors.
type errorMessages struct {
	Inner []Diagnostic `json:"inner"`
}

// ParseDiagnostics decodes compiler stderr. It accepts an {"inner": [...]}
// envelope, a bare array or a single object. Anything else is treated as one
// diagnostic whose reason is the trimmed text. Empty input yields nil.
func ParseDiagnostics(stderr []byte) []Diagnostic {
	text := bytes.TrimSpace(stderr)
	if len(text) == 0 {
		return nil
	}

	switch text[0] {
	case '{':
		var env errorMessages
		if err := json.Unmarshal(text, &env); err == nil && len(env.Inner) > 0 {
			return nonEmpty(env.Inner)
		}
		var single Diagnostic
		if err := json.Unmarshal(text, &single); err == nil && single.Message() != "" {
			return []Diagnostic{single}
		}
	case '[':
		var list []Diagnostic
		if err := json.Unmarshal(text, &list); err == nil && len(list) > 0 {
			return nonEmpty(list)
		}
	}

	return []Diagnostic{{Reason: string(text)}}
}

func nonEmpty(diags []Diagnostic) []Diagnostic {
	out := diags[:0]
	for _, d := range diags {
		if d.Message() != "" {
			out = append(out, d)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
