package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/cooperative-ledger/internal/domain/schedule"
)

type projectOptions struct {
	upToSlot     int
	mode         string
	roundingUnit int64
	slotFloor    int
	output       string
	verbose      bool
}

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:   "schedule-cli",
		Short: "Offline schedule status inspection",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	root.AddCommand(newProjectCmd(out))
	return root
}

func newProjectCmd(out io.Writer) *cobra.Command {
	defaults := schedule.DefaultPolicy()
	opts := projectOptions{}

	cmd := &cobra.Command{
		Use:   "project <fixture_file>",
		Short: "Project slot statuses and the next action from a YAML fixture",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger(opts.verbose)
			return runProject(logger, out, args[0], opts)
		},
	}

	flags := cmd.Flags()
	flags.IntVar(&opts.upToSlot, "up-to-slot", 0, "project only slots 1..N (0 projects the whole schedule)")
	flags.StringVar(&opts.mode, "mode", string(defaults.Mode), "compensation mode: retroactive or prospective")
	flags.Int64Var(&opts.roundingUnit, "rounding-unit", defaults.RoundingUnit, "round compensation up to this many minor units")
	flags.IntVar(&opts.slotFloor, "slot-floor", defaults.OpenEndedSlotFloor, "slots projected for open-ended plans")
	flags.StringVarP(&opts.output, "output", "o", "table", "output format: table or yaml")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "debug logging")
	return cmd
}

func newLogger(verbose bool) *slog.Logger {
	level := log.InfoLevel
	if verbose {
		level = log.DebugLevel
	}
	handler := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Prefix:          "schedule-cli",
		Level:           level,
	})
	return slog.New(handler)
}

func runProject(logger *slog.Logger, out io.Writer, path string, opts projectOptions) error {
	mode := schedule.CompensationMode(opts.mode)
	if !mode.Valid() {
		return fmt.Errorf("unknown compensation mode %q", opts.mode)
	}
	if opts.output != "table" && opts.output != "yaml" {
		return fmt.Errorf("unknown output format %q", opts.output)
	}

	fixture, err := LoadFixture(path)
	if err != nil {
		return err
	}
	history, err := fixture.History()
	if err != nil {
		return fmt.Errorf("invalid plan history: %w", err)
	}
	events, err := fixture.TransactionLog()
	if err != nil {
		return fmt.Errorf("invalid transaction log: %w", err)
	}
	logger.Debug("Fixture loaded",
		"account_ref", fixture.AccountRef,
		"plans", len(history),
		"events", len(events),
	)

	projector := schedule.NewProjector(schedule.NewCompensator(schedule.Policy{
		Mode:               mode,
		RoundingUnit:       opts.roundingUnit,
		OpenEndedSlotFloor: opts.slotFloor,
	}))
	resolver := schedule.NewResolver(projector, fixture.Currency)

	var upTo *int
	if opts.upToSlot > 0 {
		upTo = &opts.upToSlot
	}
	slots, err := projector.ProjectSlots(events, history, upTo)
	if err != nil {
		return fmt.Errorf("project schedule for %s: %w", fixture.AccountRef, err)
	}
	var next schedule.NextAction
	if upTo == nil {
		next, err = resolver.Resolve(slots, history)
	} else {
		next, err = resolver.NextAction(events, history)
	}
	if err != nil {
		return fmt.Errorf("resolve next action for %s: %w", fixture.AccountRef, err)
	}
	logger.Debug("Schedule projected", "slots", len(slots), "next_slot", next.Slot)

	report := NewReport(fixture.AccountRef, fixture.Currency, slots, next)
	if opts.output == "yaml" {
		return report.WriteYAML(out)
	}
	return report.WriteTable(out)
}
