// Command predictd runs the prediction-market ledger. It loads
// configuration, validates it, wires dependencies, sets up signal handling,
// and starts the application in the configured mode.
//
// Oracle operators use two helper commands:
//
//	predictd keygen -out oracle.json -password ...   create an encrypted oracle seed
//	predictd attest <market-id> <yes|no>             sign an outcome with the configured seed
package main

import (
	"context"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alanyoungcy/predictledger/internal/app"
	"github.com/alanyoungcy/predictledger/internal/config"
	"github.com/alanyoungcy/predictledger/internal/crypto"
	"github.com/alanyoungcy/predictledger/internal/validation"
)

func main() {
	configPath := flag.String("config", "config.toml", "path to configuration file")
	flag.Parse()

	switch flag.Arg(0) {
	case "keygen":
		exitOn(keygen(flag.Args()[1:]))
		return
	case "attest":
		exitOn(attest(*configPath, flag.Args()[1:]))
		return
	case "", "run":
	default:
		exitOn(fmt.Errorf("unknown command %q (valid: run, keygen, attest)", flag.Arg(0)))
	}

	// Setup structured JSON logger.
	logger := newLogger("info")
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config",
			slog.String("path", *configPath),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	logger = newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("predictd starting",
		slog.String("mode", cfg.Mode),
		slog.String("config", *configPath),
		slog.Any("settings", config.RedactedConfig(cfg)),
	)

	application := app.New(cfg, logger)
	defer application.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := application.Run(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Info("application shut down gracefully")
		} else {
			logger.Error("application exited with error", slog.String("error", err.Error()))
			application.Close()
			fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
			os.Exit(1)
		}
	}

	logger.Info("predictd stopped")
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

// keygen creates a fresh oracle seed, writes it encrypted to -out and prints
// the public key markets should be created with.
func keygen(args []string) error {
	fs := flag.NewFlagSet("keygen", flag.ContinueOnError)
	out := fs.String("out", "oracle.json", "where to write the encrypted seed")
	password := fs.String("password", os.Getenv("PREDICTD_ORACLE_KEY_PASSWORD"), "encryption password")
	if err := fs.Parse(args); err != nil {
		return err
	}

	att, err := crypto.GenerateAttestor()
	if err != nil {
		return err
	}
	sealed, err := crypto.EncryptKey(hex.EncodeToString(att.Seed()), *password)
	if err != nil {
		return err
	}
	if err := os.WriteFile(*out, sealed, 0o600); err != nil {
		return fmt.Errorf("keygen: write %s: %w", *out, err)
	}
	fmt.Println(att.PublicKey().String())
	return nil
}

// attest prints the hex signature over (market, outcome) using the oracle
// seed from the configuration.
func attest(configPath string, args []string) error {
	if len(args) != 2 {
		return errors.New("usage: predictd attest <market-id> <yes|no>")
	}
	outcome, err := validation.ParseOutcome(args[1])
	if err != nil {
		return fmt.Errorf("attest: %w", err)
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("attest: load config: %w", err)
	}
	seed, err := crypto.LoadKey(crypto.KeyConfig{
		RawSeed:          cfg.Oracle.Seed,
		EncryptedKeyPath: cfg.Oracle.EncryptedKeyPath,
		KeyPassword:      cfg.Oracle.KeyPassword,
	})
	if err != nil {
		return err
	}
	att, err := crypto.NewAttestor(seed)
	if err != nil {
		return err
	}
	fmt.Println(hex.EncodeToString(att.Attest(args[0], outcome)))
	return nil
}

func exitOn(err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "predictd: %v\n", err)
		os.Exit(1)
	}
}
