package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var dev bool

var rootCmd = &cobra.Command{
	Use:   "rechannel",
	Short: "Reconnecting websocket channel and analytics stream server",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		log, err := newLogger(dev)
		if err != nil {
			return err
		}
		zap.ReplaceGlobals(log)
		return nil
	},
	SilenceUsage: true,
}

func newLogger(dev bool) (*zap.Logger, error) {
	if dev {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&dev, "dev", false, "development logging")
	rootCmd.AddCommand(newServeCmd(), newListenCmd())
}

func main() {
	defer func() { zap.L().Sync() }()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
