package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/wesleyorama2/stampede/internal/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate <scenario.yaml>",
	Short: "Validate a scenario file without running it",
	Long: `Load a scenario file, apply defaults, and run the full validation a
run would perform. Prints what the scenario resolves to, or every
problem found.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		validateScenario(args[0])
	},
}

func validateScenario(path string) {
	sc, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "✗ %v\n", err)
		os.Exit(1)
	}
	if err := sc.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "✗ invalid scenario: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("✓ %s is valid\n", path)
	fmt.Printf("  name:        %s\n", sc.Name)
	fmt.Printf("  target:      %s\n", sc.Target.BaseURL)
	fmt.Printf("  concurrency: %d\n", sc.Concurrency)
	if sc.Rate > 0 {
		fmt.Printf("  rate:        %.1f op/s (burst %d)\n", sc.Rate, sc.Burst)
	}
	if d := sc.Duration.GetDuration(0); d > 0 {
		fmt.Printf("  duration:    %s\n", d)
	}
	if sc.Iterations > 0 {
		fmt.Printf("  iterations:  %d\n", sc.Iterations)
	}
	fmt.Printf("  operations:  %d kinds, total weight %d\n", len(sc.Operations), totalWeight(sc))
	if len(sc.Setup) > 0 {
		fmt.Printf("  setup:       %d requests\n", len(sc.Setup))
	}
}

func totalWeight(sc *config.Scenario) int {
	total := 0
	for _, op := range sc.Operations {
		total += op.Weight
	}
	return total
}
