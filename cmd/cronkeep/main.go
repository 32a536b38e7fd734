package main

import (
	"os"

	"github.com/spf13/cobra"

	logx "cronkeep/pkg/logx"
)

var (
	cfgFile string
	asJSON  bool
)

var rootCmd = &cobra.Command{
	Use:           "cronkeep",
	Short:         "Recurring prompt scheduler",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "./cronkeep.yaml", "path to config file (yaml or json)")
	rootCmd.PersistentFlags().BoolVar(&asJSON, "json", false, "print structured JSON instead of text")
	rootCmd.AddCommand(serveCmd, createCmd, listCmd, deleteCmd, runDueCmd, historyCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		logx.NewConsole("info").Error("cronkeep failed", logx.String("cmd", commandName()), logx.Err(err))
		os.Exit(1)
	}
}

// commandName resolves the subcommand from os.Args for the failure log.
func commandName() string {
	cmd, _, err := rootCmd.Find(os.Args[1:])
	if err != nil || cmd == nil {
		return rootCmd.Name()
	}
	return cmd.Name()
}
