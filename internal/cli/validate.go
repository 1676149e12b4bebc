package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/circuit/internal/compiler"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid  bool             `json:"valid"`
	Blocks []string         `json:"blocks,omitempty"`
	Errors []ValidationItem `json:"errors,omitempty"`
}

// ValidationItem is one problem found in a catalog.
type ValidationItem struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Line    int    `json:"line,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <catalog-dir>",
		Short: "Validate a CUE block catalog",
		Long: `Compile every block of a CUE catalog and check it against the
definition rules: declared kinds, defaults, clamps, enum values and
connector order lists. All problems are reported, not just the first.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runValidate(opts *RootOptions, dir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	res, errs := LoadCatalog(dir, LoadModeCollectAll)
	if res == nil {
		var loadErr *LoadError
		if errors.As(errs[0], &loadErr) {
			return formatter.Fail(ExitCommandError, loadErr.Code, loadErr.Message, nil)
		}
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, errs[0].Error(), nil)
	}
	formatter.VerboseLog("Found %d CUE file(s) in %s", res.FileCount, dir)

	items := toValidationItems(errs)
	if len(items) == 0 {
		// Cross-block rules (duplicate names) live in the catalog.
		if _, err := compiler.NewCatalog(res.Defs); err != nil {
			items = append(items, ValidationItem{Code: ErrCodeGeneric, Message: err.Error()})
		}
	}
	if len(items) > 0 {
		return outputValidationErrors(formatter, items)
	}

	names := make([]string, len(res.Defs))
	for i, def := range res.Defs {
		names[i] = def.Name
		formatter.VerboseLog("Validated block: %s", def.Name)
	}
	if formatter.JSON() {
		return formatter.Success(ValidationResult{Valid: true, Blocks: names})
	}
	fmt.Fprintf(formatter.Writer, "✓ %d block(s) valid\n", len(names))
	return nil
}

func toValidationItems(errs []error) []ValidationItem {
	items := make([]ValidationItem, 0, len(errs))
	for _, err := range errs {
		var loadErr *LoadError
		if errors.As(err, &loadErr) {
			item := ValidationItem{Code: loadErr.Code, Message: loadErr.Message}
			if loadErr.Pos.IsValid() {
				item.Line = loadErr.Pos.Line()
			}
			items = append(items, item)
			continue
		}
		items = append(items, ValidationItem{Code: ErrCodeGeneric, Message: err.Error()})
	}
	return items
}

// outputValidationErrors outputs validation errors. Validation failures
// exit with code 1.
func outputValidationErrors(formatter *OutputFormatter, items []ValidationItem) error {
	exitErr := NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(items)))

	if formatter.JSON() {
		err := formatter.encode(CLIResponse{
			Status: "error",
			Data:   ValidationResult{Valid: false, Errors: items},
			Error:  &CLIError{Code: items[0].Code, Message: items[0].Message},
		})
		if err != nil {
			return err
		}
		return exitErr
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)
	for _, item := range items {
		if item.Line > 0 {
			fmt.Fprintf(formatter.Writer, "line %d\n", item.Line)
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s\n\n", item.Code, item.Message)
	}
	return exitErr
}
