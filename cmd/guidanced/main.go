// Package main implements the guidanced daemon and its one-shot
// subcommands. File reading and presentation live here; the component
// packages never touch the filesystem.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/guidanced/internal/compiler"
	"github.com/fyrsmithlabs/guidanced/internal/config"
	"github.com/fyrsmithlabs/guidanced/internal/gates"
	"github.com/fyrsmithlabs/guidanced/internal/ledger"
	"github.com/fyrsmithlabs/guidanced/internal/logging"
	"github.com/fyrsmithlabs/guidanced/internal/optimizer"
	"github.com/fyrsmithlabs/guidanced/internal/retriever"
	"github.com/fyrsmithlabs/guidanced/internal/server"
)

var (
	configPath string
	rootDoc    string
	localDoc   string
	version    = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "guidanced",
	Short: "Guidance control plane for automated coding agents",
	Long: `guidanced compiles guidance documents into enforceable policy,
serves task-scoped rule subsets, gates tool invocations, records task
outcomes, and optimizes the rule set from violation history.`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML config file")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(compileCmd)
	rootCmd.AddCommand(gateCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the guidanced HTTP server",
	RunE:  runServe,
}

var compileCmd = &cobra.Command{
	Use:   "compile",
	Short: "Compile guidance documents to a policy bundle on stdout",
	Long: `Compile reads the root (and optional local) guidance documents and
prints the compiled policy bundle as JSON.

Examples:
  guidanced compile --root GUIDANCE.md
  guidanced compile --root GUIDANCE.md --local .guidance.local.md`,
	RunE: runCompile,
}

var gateCmd = &cobra.Command{
	Use:   "gate <command>",
	Short: "Evaluate a shell command against the enforcement gates",
	Args:  cobra.ExactArgs(1),
	RunE:  runGate,
}

func init() {
	serveCmd.Flags().StringVar(&rootDoc, "root", "", "path to root guidance document")
	serveCmd.Flags().StringVar(&localDoc, "local", "", "path to local overlay document")
	compileCmd.Flags().StringVar(&rootDoc, "root", "", "path to root guidance document")
	compileCmd.Flags().StringVar(&localDoc, "local", "", "path to local overlay document")
	_ = compileCmd.MarkFlagRequired("root")
}

func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.LoadWithFile(configPath)
	}
	return config.Load(), nil
}

func readDocs() (string, string, error) {
	var root, local string
	if rootDoc != "" {
		data, err := os.ReadFile(rootDoc)
		if err != nil {
			return "", "", fmt.Errorf("reading root document: %w", err)
		}
		root = string(data)
	}
	if localDoc != "" {
		data, err := os.ReadFile(localDoc)
		if err != nil {
			return "", "", fmt.Errorf("reading local document: %w", err)
		}
		local = string(data)
	}
	return root, local, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger, err := logging.New(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck // stdout sync errors are harmless

	comp, err := compiler.New(&cfg.Compiler, logger)
	if err != nil {
		return err
	}
	ret, err := retriever.New(&cfg.Retriever, nil, logger)
	if err != nil {
		return err
	}
	gateEngine, err := gates.New(&cfg.Gates, logger)
	if err != nil {
		return err
	}
	led, err := ledger.New(&cfg.Ledger, logger)
	if err != nil {
		return err
	}
	opt, err := optimizer.New(&cfg.Optimizer, logger)
	if err != nil {
		return err
	}

	srv, err := server.New(
		&server.Config{Host: cfg.Server.Host, Port: cfg.Server.Port},
		logger, comp, ret, gateEngine, led, opt,
	)
	if err != nil {
		return err
	}

	root, local, err := readDocs()
	if err != nil {
		return err
	}
	if root != "" || local != "" {
		if err := srv.Preload(context.Background(), root, local); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func runCompile(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	root, local, err := readDocs()
	if err != nil {
		return err
	}

	comp, err := compiler.New(&cfg.Compiler, zap.NewNop())
	if err != nil {
		return err
	}

	bundle := comp.Compile(root, local)
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(bundle)
}

func runGate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	engine, err := gates.New(&cfg.Gates, zap.NewNop())
	if err != nil {
		return err
	}

	results := engine.EvaluateCommand(args[0])
	out := struct {
		Decision gates.Decision `json:"decision"`
		Results  []gates.Result `json:"results"`
	}{Decision: gates.Aggregate(results), Results: results}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(out); err != nil {
		return err
	}
	if out.Decision == gates.Block {
		os.Exit(2)
	}
	return nil
}
