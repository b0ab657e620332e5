package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "volition",
	Short: "Volition - a decision-theoretic reasoning core",
	Long:  `Volition plans, acts and learns over a probabilistic state graph.`,
}

func Execute() error {
	return rootCmd.Execute()
}
