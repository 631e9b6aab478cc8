package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cdzombak/aggsync/internal/config"
	"github.com/cdzombak/aggsync/internal/orchestrator"
	"github.com/cdzombak/aggsync/internal/uiout"
)

var syncCommand = &cobra.Command{
	Use:     "sync",
	Aliases: []string{"transcode"},
	Short:   "Reconcile the aggregated library against every configured source library.",
	Args:    cobra.NoArgs,
	RunE:    mainify(runSync),
}

func runSync(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(rootConfig.configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	ctx := uiout.With(context.Background())
	if rootConfig.verbose {
		ctx = uiout.WithVerbose(ctx)
	}
	out := uiout.From(ctx)

	uc := orchestrator.NewUserControl()
	quitSig := make(chan os.Signal, 1)
	signal.Notify(quitSig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quitSig
		out.Warning("exit requested; finishing the current album's in-flight jobs and cleaning up partial output ...")
		uc.Exit()
	}()
	defer signal.Stop(quitSig)

	summary, err := orchestrator.Run(ctx, cfg, uc)
	uiout.ShowTerminalCursor()
	if err != nil {
		return fmt.Errorf("running sync: %w", err)
	}

	exitCode = summary.ExitCode()
	return nil
}
