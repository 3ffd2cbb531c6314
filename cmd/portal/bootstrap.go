package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/bavena95/portal-creditos/internal/orchestrator"
)

var bootstrapCmd = &cobra.Command{
	Use:   "bootstrap",
	Short: "Run one-shot infrastructure bootstrap and exit",
	Long: `Bootstrap prepares every configured dependency concurrently:
Postgres migrations, the NATS application event stream, the object storage
bucket, and a Redis round trip. Disabled dependencies are reported as skipped.

The command prints a JSON result to stdout and exits 0 on success or non-zero
on failure.`,
	RunE: runBootstrap,
}

func runBootstrap(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Bootstrap.Timeout)
	defer cancel()

	app, err := buildAppContext(ctx, cfg)
	if err != nil {
		printResult(orchestrator.StatusError, err.Error())
		return fmt.Errorf("building app context: %w", err)
	}
	defer func() {
		shutCtx, shutCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutCancel()
		app.Close(shutCtx)
	}()

	slog.Info("starting bootstrap")

	result, err := app.orchestrator.RunBootstrap(ctx)
	if err != nil {
		printResult(orchestrator.StatusError, err.Error())
		return fmt.Errorf("bootstrap failed: %w", err)
	}

	printBootstrapResult(result)
	if result.Status == orchestrator.StatusError {
		return errors.New("bootstrap completed with errors")
	}

	slog.Info("bootstrap completed successfully")
	return nil
}

func printBootstrapResult(result *orchestrator.BootstrapResult) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		fmt.Fprintf(os.Stdout, `{"status":%q}`+"\n", result.Status)
	}
}

func printResult(status, errMsg string) {
	result := map[string]string{"status": status}
	if errMsg != "" {
		result["error"] = errMsg
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		fmt.Fprintf(os.Stdout, `{"status":%q}`+"\n", status)
	}
}
