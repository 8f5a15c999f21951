// mvictl is the operator CLI for the HCC MVI risk server: score patients,
// label outcomes, import hospital data and recalibrate the model.
//
// Usage:
//
//	mvictl score --afp=25 --pivka-ii=40 --tumor-burden=7
//	mvictl label --patient=P-1 --mvi=true
//	mvictl import --hospital | --dir=<path> | --file=<export.json>
//	mvictl calibrate [--rescore]
//	mvictl export -o <file>
//	mvictl rescore
//	mvictl model
//	mvictl mcp-install [--binary=<path>] [--data-dir=<dir>]
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
