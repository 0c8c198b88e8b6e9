// Command avatarworld runs the scheduling core: the assignment queue,
// conversation threads, channel snapshots and the video job runner.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/yungbote/avatarworld/internal/platform/logger"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	root := &cobra.Command{
		Use:           "avatarworld",
		Short:         "Avatar world scheduling service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", os.Getenv("CONFIG_FILE"), "YAML file overlaid on environment configuration")

	root.AddCommand(
		newServeCmd(&configPath),
		newMigrateCmd(&configPath),
		newEnqueueCmd(&configPath),
	)
	return root
}

func newLogger() (*logger.Logger, error) {
	mode := strings.TrimSpace(os.Getenv("LOG_MODE"))
	if mode == "" {
		mode = "development"
	}
	return logger.New(mode)
}
