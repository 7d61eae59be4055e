package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wesleyorama2/stampede"
	"github.com/wesleyorama2/stampede/internal/config"
	"github.com/wesleyorama2/stampede/internal/logging"
	"github.com/wesleyorama2/stampede/internal/report"
	"github.com/wesleyorama2/stampede/internal/stress"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a stress scenario against a target",
	Long: `Execute a stress scenario: dispatch its weighted operation mix at the
configured concurrency and rate until the duration or iteration budget
is spent, then drain in-flight operations and print the report.

Interrupting the run (Ctrl-C) stops dispatch and drains; results up to
that point are reported in full.

Examples:
  stampede run --config scenario.yaml
  stampede run -c scenario.yaml --duration 5m --concurrency 16
  stampede run -c scenario.yaml --seed 424242 --json > report.json`,
	Run: func(cmd *cobra.Command, args []string) {
		runScenario(cmd)
	},
}

func init() {
	runCmd.Flags().StringP("config", "c", "", "Scenario file (YAML)")
	runCmd.Flags().String("duration", "", "Override the run duration (e.g. 5m)")
	runCmd.Flags().Uint64("iterations", 0, "Override the iteration budget")
	runCmd.Flags().Int("concurrency", 0, "Override the concurrency limit")
	runCmd.Flags().Float64("rate", 0, "Override the dispatch rate (ops/sec, 0 = unlimited)")
	runCmd.Flags().Int64("seed", 0, "Override the workload seed (replay a previous run)")
	runCmd.Flags().String("base-url", "", "Override the target base URL")
	runCmd.Flags().String("token", "", "Override the bearer token")
	runCmd.Flags().Bool("json", false, "Write the report as JSON to stdout instead of the summary")
	runCmd.Flags().StringP("output", "o", "", "Also write the JSON report to this file")
	runCmd.Flags().BoolP("quiet", "q", false, "Suppress progress lines")
	runCmd.Flags().Bool("no-color", false, "Disable colored output")
	runCmd.Flags().String("log-level", "warn", "Log level (debug, info, warn, error)")
	runCmd.Flags().String("log-format", "console", "Log format (console, json)")
	runCmd.MarkFlagRequired("config")
}

func runScenario(cmd *cobra.Command) {
	configFile, _ := cmd.Flags().GetString("config")
	jsonOutput, _ := cmd.Flags().GetBool("json")
	outputPath, _ := cmd.Flags().GetString("output")
	quiet, _ := cmd.Flags().GetBool("quiet")
	noColor, _ := cmd.Flags().GetBool("no-color")
	logLevel, _ := cmd.Flags().GetString("log-level")
	logFormat, _ := cmd.Flags().GetString("log-format")

	sc, err := config.Load(configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading scenario: %v\n", err)
		os.Exit(1)
	}
	applyOverrides(cmd, sc)
	if err := sc.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid scenario: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(logLevel, logFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error configuring logging: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	run, err := stampede.New(sc, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error preparing run: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The first signal stops dispatch and drains. A second one gives up
	// on the drain and exits immediately.
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		sig := <-sigCh
		logger.Info("signal received, draining", zap.String("signal", sig.String()))
		if !quiet && !jsonOutput {
			fmt.Fprintln(os.Stderr, "interrupt: draining in-flight operations (interrupt again to give up)")
		}
		cancel()
		<-sigCh
		os.Exit(130)
	}()

	console := report.NewConsole(os.Stdout, noColor, quiet || jsonOutput)

	if !quiet && !jsonOutput {
		fmt.Printf("stampede run %s: %s against %s\n", shortID(run.ID()), sc.Name, sc.Target.BaseURL)
	}

	done := make(chan struct{})
	var result *stampede.Result
	var runErr error
	go func() {
		defer close(done)
		result, runErr = run.Start(ctx)
	}()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
progressLoop:
	for {
		select {
		case <-done:
			break progressLoop
		case <-ticker.C:
			state := run.State()
			if state.Terminal() {
				continue
			}
			console.Progress(state, run.Progress(), run.InFlight())
		}
	}

	if runErr != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", runErr)
		// The report still prints; partial results are results.
	}

	exitCode := 0
	if result != nil {
		if jsonOutput {
			if err := report.WriteJSON(os.Stdout, result); err != nil {
				fmt.Fprintf(os.Stderr, "Error writing report: %v\n", err)
				exitCode = 1
			}
		} else {
			console.Summary(result)
		}
		if outputPath != "" {
			if err := writeReportFile(outputPath, result); err != nil {
				fmt.Fprintf(os.Stderr, "Error writing report file: %v\n", err)
				exitCode = 1
			} else if !quiet && !jsonOutput {
				fmt.Fprintf(os.Stderr, "report written: %s\n", outputPath)
			}
		}
		if result.State == stress.RunAborted {
			exitCode = 1
		}
	}
	if runErr != nil {
		exitCode = 1
	}

	if exitCode != 0 {
		logger.Sync()
		os.Exit(exitCode)
	}
}

// applyOverrides copies explicitly-set flags over the loaded scenario.
// Only changed flags apply, so scenario values survive unset flags even
// when the flag default is a meaningful value.
func applyOverrides(cmd *cobra.Command, sc *config.Scenario) {
	if cmd.Flags().Changed("duration") {
		raw, _ := cmd.Flags().GetString("duration")
		if d, err := time.ParseDuration(raw); err == nil {
			sc.Duration = config.Duration(d)
		} else {
			fmt.Fprintf(os.Stderr, "Invalid --duration %q: %v\n", raw, err)
			os.Exit(1)
		}
	}
	if cmd.Flags().Changed("iterations") {
		sc.Iterations, _ = cmd.Flags().GetUint64("iterations")
	}
	if cmd.Flags().Changed("concurrency") {
		sc.Concurrency, _ = cmd.Flags().GetInt("concurrency")
	}
	if cmd.Flags().Changed("rate") {
		sc.Rate, _ = cmd.Flags().GetFloat64("rate")
		// The burst derived from the file's rate no longer applies.
		sc.Burst = 0
		if sc.Rate > 0 {
			sc.Burst = int(sc.Rate)
			if sc.Burst < 1 {
				sc.Burst = 1
			}
		}
	}
	if cmd.Flags().Changed("seed") {
		sc.Seed, _ = cmd.Flags().GetInt64("seed")
	}
	if cmd.Flags().Changed("base-url") {
		sc.Target.BaseURL, _ = cmd.Flags().GetString("base-url")
	}
	if cmd.Flags().Changed("token") {
		sc.Target.Token, _ = cmd.Flags().GetString("token")
	}
}

func writeReportFile(path string, result *stampede.Result) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return report.WriteJSON(f, result)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
