// Package main provides the entry point for BNSim.
// BNSim is a cycle-accurate model of a big-number accelerator's
// control logic, built on the Akita simulation framework.
//
// For the full CLI, use: go run ./cmd/bnsim
package main

import (
	"fmt"
	"os"
)

func main() {
	fmt.Println("BNSim - Big-Number Accelerator Control Model")
	fmt.Println("Built on Akita simulation framework")
	fmt.Println("")
	fmt.Println("Usage: bnsim [options]")
	fmt.Println("")
	fmt.Println("Options:")
	fmt.Println("  -scenario  Path to scenario JSON file")
	fmt.Println("  -trace     Record committed changes to a SQLite database")
	fmt.Println("  -v         Verbose output")
	fmt.Println("")
	fmt.Println("Run 'go run ./cmd/bnsim' for the full CLI.")

	if len(os.Args) > 1 {
		fmt.Println("\nNote: You provided arguments. Use 'go run ./cmd/bnsim' instead.")
	}
}
