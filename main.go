package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/afero"

	"github.com/filevault/filevault/cmd"
	"github.com/filevault/filevault/pkg/environment"
	"github.com/filevault/filevault/pkg/logging"
)

func main() {
	fs := afero.NewOsFs()
	logger := logging.GetLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	env, err := environment.NewEnvironment(fs, nil)
	if err != nil {
		logger.Fatal("failed to initialize environment", "error", err)
	}

	if env.EnvFile != "" {
		logger.Debug("loading environment file", "path", env.EnvFile)
		if err := godotenv.Load(env.EnvFile); err != nil {
			logger.Warn("failed to load environment file", "path", env.EnvFile, "error", err)
		}
		// Re-read so values from the file take effect.
		if env, err = environment.NewEnvironment(fs, nil); err != nil {
			logger.Fatal("failed to initialize environment", "error", err)
		}
	}

	rootCmd := cmd.NewRootCommand(fs, ctx, env, logger)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logger.Fatal("command failed", "error", err)
	}
}
