// Package cmd is the ava command line: an interactive chat and a single-turn
// runner over the same agent graph the WhatsApp webhook uses.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	logx "github.com/avaestate/ava-agent/pkg/logger"
)

var (
	envFile  string
	threadID string
	audioOut string
)

var rootCmd = &cobra.Command{
	Use:   "ava",
	Short: "Ava, the real-estate WhatsApp agent",
	Long: `Ava answers buyers about real-estate projects: it searches the catalogue,
sends project and unit cards, replies with voice notes and remembers what
each contact told it.

Configuration comes from the environment, optionally loaded from an env file.`,
	SilenceUsage: true,
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render(err.Error()))
		stop()
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "env file to load before reading the environment")
	rootCmd.PersistentFlags().StringVar(&threadID, "thread", "", "conversation thread id (the contact's phone number); random when empty")
	rootCmd.PersistentFlags().StringVar(&audioOut, "audio-out", "", "directory to write voice replies to")

	rootCmd.AddCommand(chatCmd, turnCmd)
}

// setup loads the configuration, initialises logging and builds the agent.
func setup(cmd *cobra.Command) (*app, string, error) {
	cfg, err := loadConfig(envFile)
	if err != nil {
		return nil, "", err
	}
	logx.Init(logx.LoggerOpts{Environment: cfg.Environment, Output: cmd.ErrOrStderr()})

	a, err := newApp(cmd.Context(), cfg)
	if err != nil {
		return nil, "", err
	}

	thread := threadID
	if thread == "" {
		thread = "cli-" + uuid.NewString()[:8]
	}
	return a, thread, nil
}
