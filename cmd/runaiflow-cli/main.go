// Package main provides a CLI for authoring and running flows locally and
// for talking to a runaiflow server.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	serverURL string
	token     string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "runaiflow-cli",
		Short: "runaiflow CLI",
		Long:  "Command-line interface for authoring, validating and running flows",
	}

	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "Server URL")
	rootCmd.PersistentFlags().StringVar(&token, "token", "", "API token")

	rootCmd.AddCommand(validateCmd())
	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(pathsCmd())
	rootCmd.AddCommand(flowsCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
