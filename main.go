package main

import (
	"os"

	"github.com/RobBa/alphabet-generator/cmd"
	"github.com/RobBa/alphabet-generator/internal/errs"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(errs.ExitCode(err))
	}
}
