package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/circuit/internal/ir"
	"github.com/roach88/circuit/internal/resolver"
)

// ResolveOptions holds flags for the resolve command.
type ResolveOptions struct {
	*RootOptions
	Block        string
	ConfigFile   string
	UnsetAsUnset bool
}

// ResolveResult is the resolved configuration of one block.
type ResolveResult struct {
	Block  string          `json:"block"`
	Hash   string          `json:"hash"`
	Config ir.PlacedConfig `json:"config"`
}

// NewResolveCommand creates the resolve command.
func NewResolveCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ResolveOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "resolve [catalog-dir]",
		Short: "Resolve a stored block configuration",
		Long: `Merge a stored configuration with a block type's current definition
and print the result every placed block of that type would run with.

Without a catalog directory the built-in blocks are used. Without
--config-file an empty stored configuration is resolved, which yields the
definition's defaults.

Example:
  circuit resolve --block arithmetic
  circuit resolve ./catalog --block motor --config-file stored.json`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := ""
			if len(args) == 1 {
				dir = args[0]
			}
			return runResolve(opts, dir, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Block, "block", "", "block type to resolve against (required)")
	cmd.Flags().StringVar(&opts.ConfigFile, "config-file", "", "stored configuration JSON")
	cmd.Flags().BoolVar(&opts.UnsetAsUnset, "unset-as-unset", false, "keep missing single-kind inputs unset instead of defaulting them")
	_ = cmd.MarkFlagRequired("block")

	return cmd
}

func runResolve(opts *ResolveOptions, dir string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	cat, err := loadDefinitions(dir)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeLoadFailed, "failed to load catalog", err)
	}
	def, ok := cat.Lookup(opts.Block)
	if !ok {
		return formatter.Fail(ExitCommandError, ErrCodeUnknownBlock, fmt.Sprintf("unknown block type %q", opts.Block), nil)
	}

	stored := ir.PlacedConfig{}
	if opts.ConfigFile != "" {
		data, err := os.ReadFile(opts.ConfigFile)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeNotFound, "failed to read config file", err)
		}
		if err := json.Unmarshal(data, &stored); err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeInvalidConfig, "failed to parse config file", err)
		}
	}

	var ropts []resolver.Option
	if opts.UnsetAsUnset {
		ropts = append(ropts, resolver.WithUnsetAsUnset())
	}
	resolved, err := resolver.Resolve(stored, def, ropts...)
	if err != nil {
		return formatter.Fail(ExitFailure, ErrCodeResolve, "failed to resolve configuration", err)
	}
	hash, err := ir.ConfigHash(resolved)
	if err != nil {
		return formatter.Fail(ExitFailure, ErrCodeResolve, "failed to hash configuration", err)
	}

	result := ResolveResult{Block: def.Name, Hash: hash, Config: resolved}
	if formatter.JSON() {
		return formatter.Success(result)
	}

	for _, name := range def.InputNames() {
		cc := resolved[name]
		line := fmt.Sprintf("%-16s %-8s", name, cc.Type)
		if cc.Config != nil {
			b, err := ir.MarshalCanonical(cc.Config)
			if err != nil {
				return err
			}
			line += " " + string(b)
		}
		fmt.Fprintln(formatter.Writer, line)
	}
	fmt.Fprintf(formatter.Writer, "hash %s\n", hash)
	return nil
}
