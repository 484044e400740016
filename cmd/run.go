// File: cmd/run.go
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/kamanpsyga/xiaoriziyouxi/internal/browser"
	"github.com/kamanpsyga/xiaoriziyouxi/internal/config"
	"github.com/kamanpsyga/xiaoriziyouxi/internal/mailbox"
	"github.com/kamanpsyga/xiaoriziyouxi/internal/observability"
	"github.com/kamanpsyga/xiaoriziyouxi/internal/reporting"
	"github.com/kamanpsyga/xiaoriziyouxi/internal/workflow"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the login and renewal workflow once.",
	Long: `Logs into the panel, completing the email verification challenge if one
is presented, then walks the renewal wizard and writes a JSON run report.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.NewFromViper(viper.GetViper())
		if err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		return runWorkflow(cmd.Context(), cfg)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runWorkflow(ctx context.Context, cfg *config.Config) error {
	logger := observability.GetLogger()
	defer observability.Sync()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	mgr, err := browser.NewManager(ctx, cfg.Browser)
	if err != nil {
		return err
	}
	defer func() {
		// Shutdown gets its own context; the run context may already be
		// cancelled by the time we get here.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := mgr.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Browser shutdown reported errors.", zap.Error(err))
		}
	}()

	reg := mgr.Registry()
	if err := reg.Open(browser.SlotPrimary); err != nil {
		return err
	}

	session := browser.NewSession(reg, cfg.Browser)
	retriever := mailbox.New(reg, session, cfg.Webmail, cfg.Verification)
	navigator := workflow.NewNavigator(session, cfg.Wizard)
	machine := workflow.NewMachine(session, retriever, navigator,
		workflow.DefaultSteps(cfg.Wizard), cfg.Panel, cfg.Verification, cfg.Wizard)

	result := machine.Run(ctx)

	report := reporting.FromResult(session.ID(), result)
	if err := reporting.Write(cfg.Report.Path, report); err != nil {
		logger.Error("Could not persist run report.", zap.Error(err))
	}

	logger.Info("Workflow finished.",
		zap.String("final_state", string(result.FinalState)),
		zap.String("renewal_status", string(result.Renewal.Status)))

	switch result.FinalState {
	case workflow.StateAborted:
		return fmt.Errorf("workflow aborted: %s", result.AbortReason)
	case workflow.StateRenewalFailed:
		return fmt.Errorf("renewal failed: %s", result.Renewal.Reason)
	}
	return nil
}
