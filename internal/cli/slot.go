package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/circuit/internal/ir"
	"github.com/roach88/circuit/internal/resolver"
	"github.com/roach88/circuit/internal/store"
)

// SlotOptions holds flags shared by the slot subcommands.
type SlotOptions struct {
	*RootOptions
	Database string
	Catalog  string // import: catalog the layout must resolve against
	Name     string // import: slot name overriding the file's
	Output   string // export: destination file; empty = stdout

	// events: log filters
	Query store.EventQuery
}

// NewSlotCommand creates the slot command and its subcommands.
func NewSlotCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SlotOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "slot",
		Short: "Manage saved slots",
		Long: `Import, export, list and maintain the slots of a SQLite store.

Slot files are zstd-compressed JSON layouts with a header line naming the
config and engine versions they were written with.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkPersistentFlagRequired("db")

	importCmd := &cobra.Command{
		Use:           "import <file>",
		Short:         "Import a slot file into the store",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSlotImport(opts, args[0], cmd)
		},
	}
	importCmd.Flags().StringVar(&opts.Catalog, "catalog", "", "CUE catalog directory (default: built-in blocks)")
	importCmd.Flags().StringVar(&opts.Name, "name", "", "slot name (default: the name in the file)")

	exportCmd := &cobra.Command{
		Use:           "export <slot>",
		Short:         "Export a slot to a slot file",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSlotExport(opts, args[0], cmd)
		},
	}
	exportCmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file (default: stdout)")

	listCmd := &cobra.Command{
		Use:           "list",
		Short:         "List saved slots",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSlotList(opts, cmd)
		},
	}

	deleteCmd := &cobra.Command{
		Use:           "delete <slot>",
		Short:         "Delete a slot with its layout and event log",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSlotDelete(opts, args[0], cmd)
		},
	}

	compactCmd := &cobra.Command{
		Use:           "compact <slot>",
		Short:         "Drop superseded events from a slot's log",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSlotCompact(opts, args[0], cmd)
		},
	}

	eventsCmd := &cobra.Command{
		Use:   "events <slot>",
		Short: "Print a slot's event log",
		Long: `Print the events a slot's runs have logged, oldest first.

Example:
  circuit slot events workshop --db ./circuit.db --channel sound --from-tick 100`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSlotEvents(opts, args[0], cmd)
		},
	}
	eventsCmd.Flags().StringVar(&opts.Query.Channel, "channel", "", "only events on this channel")
	eventsCmd.Flags().StringVar(&opts.Query.Target, "target", "", "only events for this target")
	eventsCmd.Flags().Int64Var(&opts.Query.AfterSeq, "after", 0, "only events with seq greater than this")
	eventsCmd.Flags().Int64Var(&opts.Query.FromTick, "from-tick", 0, "first tick to include")
	eventsCmd.Flags().Int64Var(&opts.Query.ToTick, "to-tick", 0, "last tick to include")
	eventsCmd.Flags().IntVar(&opts.Query.Limit, "limit", 0, "maximum number of events (0 = no limit)")

	cmd.AddCommand(importCmd, exportCmd, listCmd, deleteCmd, compactCmd, eventsCmd)
	return cmd
}

// openStore opens the database named by --db.
func openStore(formatter *OutputFormatter, path string) (*store.Store, error) {
	st, err := store.Open(path)
	if err != nil {
		return nil, formatter.Fail(ExitCommandError, ErrCodeStore, "failed to open database", err)
	}
	return st, nil
}

func runSlotImport(opts *SlotOptions, file string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	f, err := os.Open(file)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeNotFound, "failed to open slot file", err)
	}
	defer f.Close()

	layout, header, err := store.ReadSlotFile(f)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeSlotFile, "failed to read slot file", err)
	}
	name := opts.Name
	if name == "" {
		name = layout.Slot
	}
	if name == "" {
		return formatter.Fail(ExitCommandError, ErrCodeSlotFile, "slot file has no name; pass --name", nil)
	}
	formatter.VerboseLog("Read %d placement(s) written by engine %s", header.Placements, header.EngineVersion)

	cat, err := loadDefinitions(opts.Catalog)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeLoadFailed, "failed to load catalog", err)
	}
	// Stored configs are saved as written; resolving only proves the
	// layout can run against this catalog.
	if _, err := resolver.ResolveAll(layout.Placements, cat); err != nil {
		return formatter.Fail(ExitFailure, ErrCodeResolve, "layout does not resolve against catalog", err)
	}

	st, err := openStore(formatter, opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.SavePlacements(cmd.Context(), name, layout.Placements); err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStore, "failed to save slot", err)
	}

	if formatter.JSON() {
		return formatter.Success(map[string]any{"slot": name, "placements": len(layout.Placements)})
	}
	fmt.Fprintf(formatter.Writer, "✓ Imported %d placement(s) into slot %s\n", len(layout.Placements), name)
	return nil
}

func runSlotExport(opts *SlotOptions, slot string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	st, err := openStore(formatter, opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	placements, err := st.LoadPlacements(cmd.Context(), slot)
	if err != nil {
		return slotError(formatter, "failed to load slot", err)
	}

	var w io.Writer = formatter.Writer
	if opts.Output != "" {
		f, err := os.Create(opts.Output)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeWriteFailed, "failed to create output file", err)
		}
		defer f.Close()
		w = f
	}
	if err := store.WriteSlotFile(w, ir.Layout{Slot: slot, Placements: placements}); err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeWriteFailed, "failed to write slot file", err)
	}

	if opts.Output != "" {
		formatter.VerboseLog("Exported %d placement(s) to %s", len(placements), opts.Output)
	}
	return nil
}

func runSlotList(opts *SlotOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	st, err := openStore(formatter, opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	slots, err := st.ListSlots(cmd.Context())
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStore, "failed to list slots", err)
	}
	if formatter.JSON() {
		return formatter.Success(slots)
	}
	if len(slots) == 0 {
		fmt.Fprintln(formatter.Writer, "No slots.")
		return nil
	}

	tw := tabwriter.NewWriter(formatter.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tPLACEMENTS\tEVENTS\tTICK\tENGINE")
	for _, s := range slots {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%s\n", s.Name, s.Placements, s.Events, s.Tick, s.EngineVersion)
	}
	return tw.Flush()
}

func runSlotDelete(opts *SlotOptions, slot string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	st, err := openStore(formatter, opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	if err := st.DeleteSlot(cmd.Context(), slot); err != nil {
		return slotError(formatter, "failed to delete slot", err)
	}
	if formatter.JSON() {
		return formatter.Success(map[string]any{"slot": slot, "deleted": true})
	}
	fmt.Fprintf(formatter.Writer, "✓ Deleted slot %s\n", slot)
	return nil
}

func runSlotCompact(opts *SlotOptions, slot string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	st, err := openStore(formatter, opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	if _, err := st.Slot(cmd.Context(), slot); err != nil {
		return slotError(formatter, "failed to compact slot", err)
	}
	n, err := st.Compact(cmd.Context(), slot)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStore, "failed to compact slot", err)
	}
	if formatter.JSON() {
		return formatter.Success(map[string]any{"slot": slot, "removed": n})
	}
	fmt.Fprintf(formatter.Writer, "✓ Removed %d superseded event(s) from slot %s\n", n, slot)
	return nil
}

func runSlotEvents(opts *SlotOptions, slot string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	st, err := openStore(formatter, opts.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	if _, err := st.Slot(cmd.Context(), slot); err != nil {
		return slotError(formatter, "failed to read events", err)
	}
	events, err := st.QueryEvents(cmd.Context(), slot, opts.Query)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStore, "failed to read events", err)
	}
	if formatter.JSON() {
		return formatter.Success(events)
	}
	if len(events) == 0 {
		fmt.Fprintln(formatter.Writer, "No events.")
		return nil
	}

	tw := tabwriter.NewWriter(formatter.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SEQ\tTICK\tCHANNEL\tTARGET\tPAYLOAD")
	for _, ev := range events {
		payload := "(cleared)"
		if !ev.Cleared {
			b, err := ir.MarshalCanonical(ev.Payload)
			if err != nil {
				return err
			}
			payload = string(b)
		}
		fmt.Fprintf(tw, "%d\t%d\t%s\t%s\t%s\n", ev.Seq, ev.Tick, ev.Channel, ev.Target, payload)
	}
	return tw.Flush()
}

// slotError reports a missing slot as a command error and anything else
// as a store failure.
func slotError(formatter *OutputFormatter, message string, err error) error {
	if errors.Is(err, store.ErrSlotNotFound) {
		return formatter.Fail(ExitCommandError, ErrCodeNotFound, message, err)
	}
	return formatter.Fail(ExitCommandError, ErrCodeStore, message, err)
}
