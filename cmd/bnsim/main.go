// Package main provides the entry point for BNSim.
// BNSim is a cycle-accurate model of a big-number accelerator's
// control logic, built on the Akita simulation framework.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/sarchlab/bnsim/harness"
)

var (
	scenarioPath = flag.String("scenario", "", "Path to scenario JSON file")
	tracePath    = flag.String("trace", "", "Record committed changes to this SQLite database")
	verbose      = flag.Bool("v", false, "Verbose output")
)

func main() {
	flag.Parse()

	scenario := harness.DefaultScenario()
	if *scenarioPath != "" {
		var err error
		scenario, err = harness.LoadScenario(*scenarioPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading scenario: %v\n", err)
			os.Exit(1)
		}
	}

	if *verbose {
		fmt.Printf("Scenario: %s\n", scenario.Name)
		fmt.Printf("Events: %d\n", len(scenario.Events))
		fmt.Printf("Cycle bound: %d\n", scenario.MaxCycles)
	}

	var rec *harness.Recorder
	if *tracePath != "" {
		rec = harness.NewRecorder(*tracePath)
	}

	result, err := harness.RunScenario(scenario, rec, *verbose)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error running scenario: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("\nScenario: %s\n", result.Name)
	fmt.Printf("Cycles: %d\n", result.Cycles)
	fmt.Printf("Final state: %s\n", result.FinalState)
	fmt.Printf("STATUS: %#04x\n", result.Status)
	fmt.Printf("ERR_BITS: %#010x\n", result.ErrBits)
	fmt.Printf("Instructions: %d\n", result.InsnCount)
}
