package commands

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/leapstack-labs/sqlpreview/internal/cli/config"
	"github.com/leapstack-labs/sqlpreview/internal/compiler"
	"github.com/leapstack-labs/sqlpreview/internal/highlight"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// defaultTerminalTheme colours SQL on a terminal when no theme is configured.
const defaultTerminalTheme = "monokai"

// NewCompileCommand creates the compile command.
func NewCompileCommand() *cobra.Command {
	var (
		asHTML  bool
		withCSS bool
		noColor bool
	)

	cmd := &cobra.Command{
		Use:   "compile <file>",
		Short: "Compile a query file once and print the SQL",
		Long: `Compile a query file with the configured compiler and print the SQL.

Use "-" to read from stdin. On a terminal the SQL is highlighted; --html
prints the same fragment the preview shows.`,
		Example: `  # Print SQL
  sqlpreview compile query.prql

  # Print the highlighted HTML fragment and its stylesheet
  sqlpreview compile query.prql --html --css --theme css-variables`,
		Args: cobra.ExactArgs(1),
		// Failures are reported as errors, not as usage mistakes.
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(cmd, args[0], compileOptions{html: asHTML, css: withCSS, noColor: noColor})
		},
	}

	cmd.Flags().BoolVar(&asHTML, "html", false, "Print the highlighted HTML fragment")
	cmd.Flags().BoolVar(&withCSS, "css", false, "With --html, also print the stylesheet for class-based themes")
	cmd.Flags().BoolVar(&noColor, "no-color", false, "Never highlight terminal output")
	cmd.Flags().Duration("timeout", 0, "Compiler timeout")

	return cmd
}

type compileOptions struct {
	html    bool
	css     bool
	noColor bool
}

func runCompile(cmd *cobra.Command, path string, opts compileOptions) error {
	cfg := config.GetConfig(cmd.Context())
	logger := config.GetLogger(cmd.Context())

	source, err := readSource(cmd.InOrStdin(), path)
	if err != nil {
		return err
	}

	c := compiler.NewExec(compiler.ExecConfig{
		Command: cfg.Compiler.Command,
		Args:    cfg.Compiler.Args,
		Timeout: cfg.Compiler.Timeout,
		Logger:  logger,
	})
	sql, err := c.Compile(cmd.Context(), source)
	if err != nil {
		var cerr *compiler.Error
		if errors.As(err, &cerr) {
			for _, d := range cerr.Diagnostics {
				_, _ = fmt.Fprintln(cmd.ErrOrStderr(), d.Message())
			}
			return fmt.Errorf("%s: compilation failed", path)
		}
		return err
	}

	out := cmd.OutOrStdout()
	switch {
	case opts.html:
		return writeHTML(out, cfg.Preview.Theme, sql, opts.css)
	case !opts.noColor && isTerminal(out):
		theme := cfg.Preview.Theme
		if theme == "" || theme == highlight.InheritTheme {
			theme = defaultTerminalTheme
		}
		h, err := highlight.Load(theme)
		if err != nil {
			return err
		}
		if err := h.WriteTerminal(out, sql, "sql"); err != nil {
			return err
		}
		_, err = fmt.Fprintln(out)
		return err
	default:
		_, err = fmt.Fprintln(out, sql)
		return err
	}
}

func writeHTML(w io.Writer, theme, sql string, withCSS bool) error {
	h, err := highlight.Load(theme)
	if err != nil {
		return err
	}
	if withCSS && h.Theme() == highlight.InheritTheme {
		css, err := h.CSS()
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "<style>\n%s</style>\n", css); err != nil {
			return err
		}
	}
	html, err := h.Render(sql, "sql")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, html)
	return err
}

func readSource(stdin io.Reader, path string) (string, error) {
	if path == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return string(data), nil
}

// isTerminal reports whether w is a terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
