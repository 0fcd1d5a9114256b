// Command internshipd runs the internship applications API and its
// maintenance jobs.
//
// @title                      Internship Applications API
// @version                    1.0
// @description                Application intake, admin workflow, payments and document issuance.
// @BasePath                   /api/v1
// @securityDefinitions.apikey BearerAuth
// @in                         header
// @name                       Authorization
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	_ "github.com/tbourn/internship-backend/docs"
)

// Version is stamped at build time with -ldflags "-X main.Version=...".
var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:           "internshipd",
		Short:         "Internship applications API",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(remindCmd())
	rootCmd.AddCommand(purgeCmd())
	rootCmd.AddCommand(tokenCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
