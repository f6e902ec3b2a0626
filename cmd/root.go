/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"os"

	"github.com/inkwell-blog/apiserver/config"
	"github.com/inkwell-blog/apiserver/internal/logging"
	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "inkwell",
	Short: "Inkwell blog API server",
	Long: `Inkwell serves a small blogging API: registration, cookie sessions
and author-owned posts with cover images.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(cfg config.Config) logging.Logger {
	return logging.NewJSON(os.Stderr, cfg.LogLevel)
}
