package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/spf13/cobra"

	"github.com/bryanwahyu/automaton-a11y/internal/application"
	appaudits "github.com/bryanwahyu/automaton-a11y/internal/application/audits"
	"github.com/bryanwahyu/automaton-a11y/internal/bootstrap"
	"github.com/bryanwahyu/automaton-a11y/internal/config"
	domain "github.com/bryanwahyu/automaton-a11y/internal/domain/audits"
)

var (
	scanSummary      bool
	scanAllowPrivate bool
	scanTimeout      time.Duration
)

// newScanner is swapped in tests.
var newScanner = func(cfg *config.Config) (domain.Scanner, error) {
	return bootstrap.Scanner(cfg)
}

var targetResolver domain.Resolver = net.DefaultResolver

func init() {
	rootCmd.AddCommand(scanCmd)
	scanCmd.Flags().BoolVar(&scanSummary, "summary", false, "Also generate the AI summary (needs an API key)")
	scanCmd.Flags().BoolVar(&scanAllowPrivate, "allow-private", false, "Allow localhost and private network targets")
	scanCmd.Flags().DurationVar(&scanTimeout, "timeout", 2*time.Minute, "Overall deadline for the scan")
}

var scanCmd = &cobra.Command{
	Use:   "scan <url>",
	Short: "Audit one URL and print the result as JSON",
	Long:  "Runs the browser scan and report synthesis once, without credits, trial counting or persistence.",
	Args:  cobra.ExactArgs(1),
	RunE:  runScan,
}

func runScan(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(false)
	if err != nil {
		return fmt.Errorf("config load: %w", err)
	}

	scanner, err := newScanner(cfg)
	if err != nil {
		return fmt.Errorf("scanner: %w", err)
	}

	svc := &appaudits.Service{
		Scanner:             scanner,
		Resolver:            targetResolver,
		Clock:               application.SystemClock{},
		Log:                 logger(cfg).With("component", "auditctl"),
		AllowPrivateTargets: scanAllowPrivate || cfg.Scanner.AllowPrivateTargets,
	}
	if scanSummary {
		svc.Summarizer = bootstrap.Summarizer(cfg)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), scanTimeout)
	defer cancel()

	res, err := svc.Run(ctx, appaudits.RunAuditCommand{URL: args[0], UnlimitedAccess: true})
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(res.Audit); err != nil {
		return err
	}
	if res.Audit.Status == domain.StatusFailed {
		return fmt.Errorf("scan failed: %s", res.Audit.ErrorMessage)
	}
	return nil
}
