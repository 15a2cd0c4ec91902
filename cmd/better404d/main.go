package main

import (
	"fmt"
	"os"

	"github.com/better404/better404/internal/cli"
	"github.com/better404/better404/internal/cli/admin"
	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "better404d",
		Short: "better404 server and admin CLI",
		Long:  "better404 turns dead links into suggestions. This binary runs the API server and the indexing tools.",
	}

	cli.AddHelpJSONFlag(rootCmd)
	rootCmd.AddCommand(admin.ServeCmd())
	rootCmd.AddCommand(admin.IndexCmd())
	rootCmd.AddCommand(admin.RescrapeCmd())
	rootCmd.AddCommand(admin.DomainCmd())

	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	if handled, err := cli.HandleHelpJSON(rootCmd, os.Args[1:], os.Stdout); handled {
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error generating schema: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
