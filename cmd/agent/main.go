package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/septivank/water-meter-agent/internal/config"
)

const (
	startTimeout = 30 * time.Second
	stopTimeout  = 30 * time.Second
)

func main() {
	cmd, err := parseCommand(os.Args[1:])
	if err != nil {
		if errors.Is(err, errHelp) {
			fmt.Fprint(os.Stdout, usage)
			os.Exit(0)
		}
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprint(os.Stderr, usage)
		os.Exit(exitUsage)
	}

	loadEnv()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	app := fx.New(
		fx.Supply(cmd),
		fx.Provide(
			config.Load,
			newLogger,
			ProvideRedisClient,
			ProvideStore,
			ProvideBackendClient,
			ProvideAuthService,
			ProvideEvaluator,
			ProvideValidator,
			ProvideAnomalyDetector,
			ProvideLookupAdapter,
			ProvideRepository,
			ProvideJournal,
			ProvideMQConnection,
			ProvidePublisher,
			ProvideSubmissionService,
			ProvideBillingService,
			ProvideReviewProcessor,
		),
		fx.WithLogger(func(logger *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: logger.Named("fx")}
		}),
		fx.Invoke(runCommand),
	)

	startCtx, startCancel := context.WithTimeout(context.Background(), startTimeout)
	defer startCancel()

	if err := app.Start(startCtx); err != nil {
		if startCtx.Err() == context.DeadlineExceeded {
			fmt.Fprintln(os.Stderr, "the agent did not start within 30 seconds; check that Redis and any configured database or broker are reachable")
		}
		fmt.Fprintln(os.Stderr, "failed to start:", err)
		os.Exit(exitFailure)
	}

	code := exitInterrupted
	select {
	case sig := <-app.Wait():
		code = sig.ExitCode
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "interrupted")
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), stopTimeout)
	defer stopCancel()
	if err := app.Stop(stopCtx); err != nil {
		fmt.Fprintln(os.Stderr, "error stopping agent:", err)
	}

	os.Exit(code)
}

// loadEnv loads the first .env found in the working directory or its parents
func loadEnv() {
	envPaths := []string{
		".env",
		"../../.env",
	}
	if workDir, err := os.Getwd(); err == nil {
		parentDir := filepath.Dir(workDir)
		envPaths = append(envPaths,
			filepath.Join(workDir, ".env"),
			filepath.Join(parentDir, ".env"),
			filepath.Join(filepath.Dir(parentDir), ".env"),
		)
	}

	for _, envPath := range envPaths {
		if _, err := os.Stat(envPath); err != nil {
			continue
		}
		if err := godotenv.Load(envPath); err == nil {
			return
		}
	}
}
