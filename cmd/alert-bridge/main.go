package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/brandon/alert-bridge/internal/bridge"
	"github.com/brandon/alert-bridge/internal/config"
	"github.com/brandon/alert-bridge/internal/email"
	"github.com/brandon/alert-bridge/internal/notify"
)

var (
	version     = "dev"
	showVersion = flag.Bool("version", false, "Show version information")
	configPath  = flag.String("config", "", "Optional config file (toml, yaml or json)")
	envFile     = flag.String("env-file", ".env", "Optional dotenv file loaded before reading the environment")
	runOnce     = flag.Bool("once", false, "Run a single poll cycle and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("alert-bridge version %s\n", version)
		os.Exit(0)
	}
	// Set up logging
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)

	// Load configuration
	if err := config.LoadEnvFile(*envFile); err != nil {
		logger.WithError(err).Fatal("Failed to load env file")
	}
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		logger.WithError(err).Fatal("Invalid configuration")
	}

	// Set log level
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	imapClient := email.NewIMAPClient(&cfg.Mail, cfg.Poll.IOTimeout, logger)
	notifier := notify.NewTelegramNotifier(&cfg.Telegram, cfg.Poll.IOTimeout, logger)
	b := bridge.New(cfg, imapClient, notifier, logger)

	// Set up signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *runOnce {
		report := b.RunCycle(ctx)
		if report.Err != nil {
			stop()
			os.Exit(1)
		}
		return
	}

	if err := b.Run(ctx); err != nil {
		logger.WithError(err).Error("Alert bridge error")
	}

	logger.Info("Shutting down alert bridge")
}
