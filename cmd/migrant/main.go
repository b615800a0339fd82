package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/roach88/migrant/internal/cli"
)

func main() {
	rootCmd := cli.NewRootCommand()
	err := rootCmd.ExecuteContext(context.Background())
	if err == nil {
		return
	}

	// Commands report their own errors; anything else is a usage error from
	// flag or argument parsing.
	var exitErr *cli.ExitError
	if !errors.As(err, &exitErr) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		fmt.Fprintf(os.Stderr, "Run '%s --help' for usage.\n", rootCmd.Name())
		os.Exit(cli.ExitCommandError)
	}
	os.Exit(exitErr.Code)
}
