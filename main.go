package main

import (
	"os"

	"github.com/fatih/color"
	"github.com/signalnine/stabilizer/cmd"
)

func main() {
	if err := cmd.NewRootCmd().Execute(); err != nil {
		color.New(color.FgHiRed).Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
