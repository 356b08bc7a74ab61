package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	version = "dev"
	commit  = "unknown"
)

var rootCmd = &cobra.Command{
	Use:     "chartpyramid",
	Short:   "Convert aeronautical chart archives into a web map tile pyramid",
	Version: fmt.Sprintf("%s (commit %s)", version, commit),
}

// Execute runs the root command. Called once from main.main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initLogging)

	rootCmd.PersistentFlags().Bool("quiet", false, "suppress progress bars and info-level logging")
	viper.BindPFlag("quiet", rootCmd.PersistentFlags().Lookup("quiet"))
	viper.SetEnvPrefix("CHARTPYRAMID")
	viper.AutomaticEnv()
}

func initLogging() {
	level := slog.LevelInfo
	if viper.GetBool("quiet") {
		level = slog.LevelWarn
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}
