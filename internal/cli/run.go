package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/roach88/circuit/internal/config"
	"github.com/roach88/circuit/internal/engine"
	"github.com/roach88/circuit/internal/ir"
	"github.com/roach88/circuit/internal/metrics"
	"github.com/roach88/circuit/internal/store"
	"github.com/roach88/circuit/internal/synchronizer"
	"github.com/roach88/circuit/internal/transport"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database string
	Slot     string
	Ticks    int
	Listen   string
	Catalog  string

	// IDGenerator allows overriding the machine id generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	IDGenerator engine.IDGenerator
}

// RunSummary is printed when a run ends.
type RunSummary struct {
	Machine string       `json:"machine"`
	Slot    string       `json:"slot"`
	Ticks   int          `json:"ticks"`
	Tick    int64        `json:"tick"`
	Elapsed float64      `json:"elapsed"`
	Events  int          `json:"events"`
	Burned  []ir.BlockID `json:"burned,omitempty"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	return newRunCommand(&RunOptions{RootOptions: rootOpts})
}

func newRunCommand(opts *RunOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a saved slot",
		Long: `Load a slot from the store and evaluate it on the fixed-step machine.

With --ticks the machine runs that many ticks back to back and exits.
Without it the machine ticks at tick_rate_hz until interrupted, serving
observers on --listen when an address is set. Events are appended to the
slot's log and progress is saved, so a later run resumes where this one
stopped.

Example:
  circuit run --db ./circuit.db --slot workshop --ticks 100
  circuit run --db ./circuit.db --slot workshop --listen 127.0.0.1:8088`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMachine(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (default: db_path from config)")
	cmd.Flags().StringVar(&opts.Slot, "slot", "", "slot to run (required)")
	cmd.Flags().IntVar(&opts.Ticks, "ticks", 0, "run this many ticks and exit (0 = until interrupted)")
	cmd.Flags().StringVar(&opts.Listen, "listen", "", "HTTP/websocket address (default: listen_addr from config when running until interrupted)")
	cmd.Flags().StringVar(&opts.Catalog, "catalog", "", "CUE catalog directory (default: catalog_dir from config, else built-in blocks)")
	_ = cmd.MarkFlagRequired("slot")

	return cmd
}

// applyFlags overrides configuration with explicitly set flags.
func (o *RunOptions) applyFlags(cmd *cobra.Command, cfg *config.Config) {
	if o.Database != "" {
		cfg.DBPath = o.Database
	}
	if o.Catalog != "" {
		cfg.CatalogDir = o.Catalog
	}
	switch {
	case cmd.Flags().Changed("listen"):
		cfg.ListenAddr = o.Listen
	case o.Ticks > 0:
		// A bounded run is a batch job; serve only when asked to.
		cfg.ListenAddr = ""
	}
}

func runMachine(opts *RunOptions, cmd *cobra.Command) error {
	if opts.Ticks < 0 {
		return NewExitError(ExitCommandError, fmt.Sprintf("--ticks must be >= 0, got %d", opts.Ticks))
	}
	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}
	opts.applyFlags(cmd, &cfg)

	formatter := newFormatter(opts.RootOptions, cmd)
	logger := newLogger(opts.RootOptions, cfg, cmd.ErrOrStderr())

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	logger.Info("opening database", "path", cfg.DBPath)
	st, err := openStore(formatter, cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			logger.Error("error closing database", "error", closeErr)
		}
	}()

	info, err := st.Slot(ctx, opts.Slot)
	if err != nil {
		return slotError(formatter, "failed to open slot", err)
	}
	placements, err := st.LoadPlacements(ctx, opts.Slot)
	if err != nil {
		return slotError(formatter, "failed to load slot", err)
	}

	registry, _, err := loadRegistry(cfg.CatalogDir)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeLoadFailed, "failed to load catalog", err)
	}

	syncer := synchronizer.New(synchronizer.WithLogger(logger))
	if err := st.RestoreSync(ctx, opts.Slot, syncer); err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStore, "failed to restore event log", err)
	}
	journal := newJournal(st, opts.Slot)
	_, unsubscribe := syncer.Subscribe(journal)
	defer unsubscribe()

	promReg := prometheus.NewRegistry()
	collector := metrics.New(promReg)

	ids := opts.IDGenerator
	if ids == nil {
		ids = engine.UUIDv7Generator{}
	}
	machine := engine.NewMachine(ids.Generate(), registry, syncer,
		engine.WithLogger(logger),
		engine.WithMetrics(collector),
		engine.WithClock(engine.NewClockAt(info.Tick, info.Elapsed)),
		engine.WithBaseDT(cfg.TickDT()),
		engine.WithMaxSendsPerTick(cfg.MaxSendsPerTick),
	)
	defer machine.Stop()

	if err := machine.PlaceAll(placements); err != nil {
		return formatter.Fail(ExitFailure, ErrCodeMachine, "failed to place slot", err)
	}
	logger.Info("slot loaded", "slot", opts.Slot, "machine", machine.ID(), "placements", len(placements), "tick", info.Tick)

	summary := &RunSummary{Machine: machine.ID(), Slot: opts.Slot}
	onTick := func(r engine.TickReport) {
		summary.Ticks++
		summary.Burned = append(summary.Burned, r.Burned...)
		if err := journal.commit(ctx, r.Tick, machine.Elapsed(), summary.Ticks%cfg.TickRateHz == 0); err != nil {
			logger.Error("failed to persist tick", "tick", r.Tick, "error", err)
		}
	}

	var srv *http.Server
	if cfg.ListenAddr != "" {
		handler := transport.NewServer(transport.Config{
			Machine:    machine,
			Sync:       syncer,
			Gatherer:   promReg,
			Metrics:    collector,
			Logger:     logger,
			InputRate:  rate.Limit(cfg.InputRate),
			InputBurst: cfg.InputBurst,

			AllowedOrigins: cfg.AllowedOrigins,
		})
		defer handler.Close()
		srv = &http.Server{Addr: cfg.ListenAddr, Handler: handler, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			logger.Info("serving observers", "addr", cfg.ListenAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http server failed", "error", err)
				cancel()
			}
		}()
	}

	if opts.Ticks > 0 {
		for i := 0; i < opts.Ticks && ctx.Err() == nil; i++ {
			onTick(machine.Tick())
		}
	} else {
		stopSignals := notifyCancel(ctx, cancel, logger)
		defer stopSignals()
		if err := machine.Run(ctx, cfg.Cadence(), onTick); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
			return WrapExitError(ExitFailure, "machine error", err)
		}
	}

	if srv != nil {
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown failed", "error", err)
		}
	}

	// Final flush uses a fresh context; ctx may already be cancelled.
	if err := journal.commit(context.Background(), machine.TickCount(), machine.Elapsed(), true); err != nil {
		return formatter.Fail(ExitFailure, ErrCodeStore, "failed to save progress", err)
	}
	summary.Tick = machine.TickCount()
	summary.Elapsed = machine.Elapsed()
	summary.Events = journal.total()
	logger.Info("machine stopped", "tick", summary.Tick, "events", summary.Events)

	if formatter.JSON() {
		return formatter.Success(summary)
	}
	fmt.Fprintf(formatter.Writer, "✓ Ran %d tick(s) of slot %s: tick %d, %d event(s)\n", summary.Ticks, summary.Slot, summary.Tick, summary.Events)
	for _, id := range summary.Burned {
		fmt.Fprintf(formatter.Writer, "  burned: %s\n", id)
	}
	return nil
}

// notifyCancel cancels ctx on SIGINT or SIGTERM.
func notifyCancel(ctx context.Context, cancel context.CancelFunc, logger *slog.Logger) (stop func()) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()
	return func() { signal.Stop(sigChan) }
}

// journal is the synchronizer observer that appends dispatched events to
// the slot's log. Events are buffered during a tick and written after it,
// outside the machine's lock.
type journal struct {
	st   *store.Store
	slot string

	mu      sync.Mutex
	pending []synchronizer.Event
	written int
}

func newJournal(st *store.Store, slot string) *journal {
	return &journal{st: st, slot: slot}
}

// Deliver implements synchronizer.Observer.
func (j *journal) Deliver(ev synchronizer.Event) {
	j.mu.Lock()
	j.pending = append(j.pending, ev)
	j.mu.Unlock()
}

// commit appends buffered events and, when saveProgress is set, records
// the machine's clock on the slot.
func (j *journal) commit(ctx context.Context, tick int64, elapsed float64, saveProgress bool) error {
	j.mu.Lock()
	events := j.pending
	j.pending = nil
	j.mu.Unlock()

	if len(events) > 0 {
		if err := j.st.AppendEvents(ctx, j.slot, events); err != nil {
			j.requeue(events)
			return err
		}
		j.mu.Lock()
		j.written += len(events)
		j.mu.Unlock()
	}
	if saveProgress {
		return j.st.SaveProgress(ctx, j.slot, tick, elapsed)
	}
	return nil
}

func (j *journal) requeue(events []synchronizer.Event) {
	j.mu.Lock()
	j.pending = append(events, j.pending...)
	j.mu.Unlock()
}

func (j *journal) total() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.written
}
