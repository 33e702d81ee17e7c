package cmd

import (
	"fmt"
	"os"

	"github.com/mezonai/devnode/logx"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "devnode",
	Short: "Single node development chain",
	Long:  "Command line interface for running a development chain with snapshot and revert support.",
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		logx.Error("CMD", fmt.Sprintf("Command execution failed | error=%v", err))
		os.Exit(1)
	}
}
