package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/seelobuilds-bit/pilates-v4-sub005/internal/config"
	"github.com/seelobuilds-bit/pilates-v4-sub005/internal/logger"
)

const serviceName = "studio-booking"

// Global logger instance
var log *logger.Logger

func main() {
	log = logger.NewLogger()
	defer log.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		log.Fatal("CLI", err.Error())
	}
}

func newRootCmd() *cobra.Command {
	var envFile string

	root := &cobra.Command{
		Use:           serviceName,
		Short:         "Class checkout and booking settlement for pilates studios",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			files := []string{}
			if envFile != "" {
				files = append(files, envFile)
			}
			if err := godotenv.Load(files...); err != nil {
				log.Warn("ENV", "Error loading .env file, using environment variables")
			}
		},
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", "", "path to a .env file (default .env)")

	root.AddCommand(newServeCmd(), newWorkerCmd(), newMigrateCmd())
	return root
}

func loadConfig(requireStripe bool) *config.Config {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("CONFIG", "Failed to load configuration: "+err.Error())
	}
	if requireStripe && cfg.Stripe.SecretKey == "" {
		log.Fatal("CONFIG", "STRIPE_SECRET_KEY environment variable not set")
	}
	log.Info("CONFIG", "Configuration loaded successfully")
	return cfg
}
