package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/mtrqq/memsim/pkg/addrspace"
	"github.com/mtrqq/memsim/pkg/config"
	"github.com/mtrqq/memsim/pkg/display"
	"github.com/mtrqq/memsim/pkg/policy"
	"github.com/mtrqq/memsim/pkg/process"
	"github.com/mtrqq/memsim/pkg/sched"
	"github.com/mtrqq/memsim/pkg/trace"
	"github.com/mtrqq/memsim/pkg/workload"
)

const (
	exitOK = iota
	exitInvalidInput
	exitCapacity
	exitInternal
)

// envFiles are read for MEMSIM_* settings, missing files are ignored.
var envFiles = []string{".env"}

func newRootCommand() *cobra.Command {
	cfg := config.Default()

	cmd := &cobra.Command{
		Use:   "memsim",
		Short: "Simulate dynamic partitioning with first-fit placement and FIFO replacement.",
		Long: `memsim admits a batch of processes into a fixed amount of memory, one ` +
			`tick at a time. Requests are placed first-fit, freed blocks are ` +
			`coalesced and, when nothing fits, the longest resident process is ` +
			`evicted until the request can be placed.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args: func(cmd *cobra.Command, args []string) error {
			if err := cobra.NoArgs(cmd, args); err != nil {
				return fmt.Errorf("%w: %w", config.ErrInvalidConfig, err)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := loadSettings(cmd, &cfg)
			if err != nil {
				return err
			}

			return simulate(cmd, cfg, env)
		},
	}

	flags := cmd.Flags()
	flags.IntVarP(&cfg.Memory, "memory", "m", cfg.Memory, "total memory in KB, asked for on the console when 0")
	flags.StringVarP(&cfg.Policy, "policy", "p", cfg.Policy, "admission order: input, strict or size")
	flags.StringVarP(&cfg.Workload, "workload", "w", cfg.Workload, "YAML workload file to read processes from")
	flags.BoolVar(&cfg.Demo, "demo", cfg.Demo, "use the built-in ten process workload")
	flags.BoolVar(&cfg.Readmit, "readmit", cfg.Readmit, "let evicted processes be admitted again")
	flags.IntVar(&cfg.MaxTicks, "max-ticks", cfg.MaxTicks, "stop after this many ticks, 0 derives a bound from the workload")
	flags.BoolVar(&cfg.Verify, "verify", cfg.Verify, "check memory invariants after every admission")
	flags.StringVar(&cfg.Format, "format", cfg.Format, "snapshot output: text or json")
	flags.StringVar(&cfg.TraceDB, "trace-db", cfg.TraceDB, "SQLite database to record events into")
	flags.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level")
	flags.BoolVar(&cfg.LogJSON, "log-json", cfg.LogJSON, "write logs as JSON")
	flags.IntVar(&cfg.MaxProcesses, "max-processes", cfg.MaxProcesses, "maximum number of processes accepted")

	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return fmt.Errorf("%w: %w", config.ErrInvalidConfig, err)
	})
	cmd.AddCommand(newPoliciesCommand())

	return cmd
}

// loadSettings layers the configuration: flags over environment over the
// workload file over defaults.
func loadSettings(cmd *cobra.Command, cfg *config.Config) (map[string]string, error) {
	env, err := config.ReadEnv(envFiles...)
	if err != nil {
		return nil, err
	}

	if err := cfg.ApplyEnv(env, cmd.Flags().Changed); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	setupLogging(*cfg)
	return env, nil
}

func setupLogging(cfg config.Config) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.WarnLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.LogJSON {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
}

func jsonOutput(cfg config.Config) bool {
	return strings.EqualFold(cfg.Format, "json")
}

// explicit reports whether a setting came from a flag or the environment.
func explicit(cmd *cobra.Command, env map[string]string, flag string) bool {
	if cmd.Flags().Changed(flag) {
		return true
	}

	_, set := env[config.EnvKey(flag)]
	return set
}

// loadWorkload reads the workload file, if any. Its memory size and policy
// only apply where no flag or environment variable set them.
func loadWorkload(cmd *cobra.Command, env map[string]string, cfg *config.Config) (*workload.File, error) {
	if cfg.Workload == "" {
		return nil, nil
	}

	file, err := workload.LoadFile(cfg.Workload)
	if err != nil {
		return nil, err
	}

	if cfg.Memory == 0 {
		cfg.Memory = file.Memory
	}

	if file.Policy != "" && !explicit(cmd, env, "policy") {
		cfg.Policy = file.Policy
	}

	return &file, nil
}

// acquire builds the process set from the demo, the workload file or the
// console, asking on the console for whatever is still missing.
func acquire(cmd *cobra.Command, cfg *config.Config, pol policy.Policy, file *workload.File) (*process.Set, error) {
	var set *process.Set

	switch {
	case cfg.Demo:
		set = workload.Demo()
		if cfg.Memory == 0 {
			cfg.Memory = workload.DemoMemory
		}
	case file != nil:
		set = file.Set()
	}

	onDuplicate := workload.Reprompt
	if pol.Strict() {
		onDuplicate = workload.Abort
	}
	// stdout carries nothing but records in JSON mode
	prompts := cmd.OutOrStdout()
	if jsonOutput(*cfg) {
		prompts = cmd.ErrOrStderr()
	}
	console := workload.NewConsole(cmd.InOrStdin(), prompts, onDuplicate, cfg.MaxProcesses)

	if cfg.Memory == 0 {
		memory, err := console.ReadMemory()
		if err != nil {
			return nil, consoleError(err)
		}
		cfg.Memory = memory
	}

	if set == nil {
		var err error
		set, err = console.ReadProcesses()
		if err != nil {
			return nil, consoleError(err)
		}
	}

	if err := set.Validate(cfg.MaxProcesses); err != nil {
		return nil, err
	}

	return set, nil
}

func consoleError(err error) error {
	if workload.IsIncomplete(err) {
		return fmt.Errorf("%w: input ended before all values were entered: %w", process.ErrInvalid, err)
	}

	return err
}

func simulate(cmd *cobra.Command, cfg config.Config, env map[string]string) error {
	file, err := loadWorkload(cmd, env, &cfg)
	if err != nil {
		return err
	}

	pol, err := policy.ByName(cfg.Policy)
	if err != nil {
		return fmt.Errorf("%w: %w", config.ErrInvalidConfig, err)
	}

	set, err := acquire(cmd, &cfg, pol, file)
	if err != nil {
		return err
	}

	log.Info().
		Int("memory", cfg.Memory).
		Int("processes", set.Len()).
		Str("policy", pol.Name()).
		Bool("readmit", cfg.Readmit).
		Msg("starting simulation")

	s, err := sched.New(cfg.Memory, pol,
		sched.WithReadmit(cfg.Readmit),
		sched.WithMaxTicks(cfg.MaxTicks),
		sched.WithVerify(cfg.Verify),
	)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	renderer, err := display.New(cfg.Format, out)
	if err != nil {
		return err
	}
	s.AddObserver(renderer)

	if !jsonOutput(cfg) {
		fmt.Fprintf(out, "\nSimulating dynamic partitioning with FIFO replacement (policy %s)...\n", pol.Name())
	}

	if cfg.TraceDB != "" {
		writer := trace.NewSQLiteWriter(cfg.TraceDB)
		if err := writer.Init(pol.Name(), cfg.Memory); err != nil {
			return err
		}
		defer closeTrace(writer)
		s.AddObserver(writer)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	stats, err := s.Run(ctx, set)
	if err != nil {
		return err
	}

	if err := renderer.Err(); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	log.Info().
		Int("ticks", stats.Ticks).
		Int("admissions", stats.Admissions).
		Int("evictions", stats.Evictions).
		Msg("simulation complete")

	return nil
}

func closeTrace(writer *trace.SQLiteWriter) {
	if err := writer.Err(); err != nil {
		log.Error().Err(err).Msg("trace recording failed")
	}

	if err := writer.Close(); err != nil {
		log.Error().Err(err).Msg("failed to close trace database")
		return
	}

	log.Info().Str("run", writer.RunID()).Msg("trace written")
}

// validationErrors are the failures caused by the user's input or settings.
var validationErrors = []error{
	config.ErrInvalidConfig,
	process.ErrInvalid,
	process.ErrDuplicateID,
	process.ErrTooMany,
	workload.ErrInvalidWorkload,
	policy.ErrUnknownPolicy,
	display.ErrUnknownFormat,
	addrspace.ErrInvalidSize,
}

func exitCode(err error) int {
	if err == nil {
		return exitOK
	}

	if errors.Is(err, sched.ErrCapacity) {
		return exitCapacity
	}

	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return exitInvalidInput
		}
	}

	return exitInternal
}

// Execute runs the root command against the process arguments and returns
// the exit status.
func Execute() int {
	return execute(newRootCommand(), os.Stdin, os.Stdout)
}

func execute(cmd *cobra.Command, in io.Reader, out io.Writer) int {
	cmd.SetIn(in)
	cmd.SetOut(out)

	err := cmd.Execute()
	if err != nil {
		log.Error().Err(err).Msg("simulation failed")
	}

	return exitCode(err)
}
