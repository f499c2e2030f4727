package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	cfgPkg "github.com/KANCHARLABRUNDARIKA/KnowledgeBased-MindQuery/pkg/config"
	"github.com/KANCHARLABRUNDARIKA/KnowledgeBased-MindQuery/pkg/logger"
)

var (
	configPath string
	userID     string
	cfg        *cfgPkg.Config
)

var rootCmd = &cobra.Command{
	Use:   "mindquery",
	Short: "Ask questions about your own documents",
	Long: `mindquery keeps one knowledge base per user plus a shared default one,
and answers questions from them with a local Ollama model.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = cfgPkg.LoadConfig(configPath)
		if err != nil {
			return err
		}
		if err := logger.Init(cfg.Log.Level, cfg.Log.Development); err != nil {
			return err
		}
		return cfg.Check()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file")
	rootCmd.PersistentFlags().StringVarP(&userID, "user", "u", "", "user id whose knowledge base to use")
}

// requireUser returns the --user flag or fails.
func requireUser() (string, error) {
	if userID == "" {
		return "", fmt.Errorf("--user is required")
	}
	return userID, nil
}

// sessionUser returns the --user flag, or a fresh id for this session.
func sessionUser() string {
	if userID == "" {
		userID = "session-" + uuid.NewString()[:8]
		color.Yellow("No --user given, using %s for this session", userID)
	}
	return userID
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	logger.Sync()

	if err != nil {
		color.Red("Error: %v", err)
		os.Exit(1)
	}
}
