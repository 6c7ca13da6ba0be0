package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/stellarstream/watcher/internal/core/config"
)

var resetCursorCmd = &cobra.Command{
	Use:   "reset-cursor [ledger]",
	Short: "Reset the watcher cursor to a given ledger sequence",
	Long:  `Overwrites the persisted checkpoint so the next watcher start resumes from the given ledger. The running watcher is not affected; restart it to pick the new cursor up.`,
	Args:  cobra.ExactArgs(1),
	Run:   runResetCursor,
}

func init() {
	rootCmd.AddCommand(resetCursorCmd)
}

func runResetCursor(cmd *cobra.Command, args []string) {
	ledger, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		fmt.Printf("Invalid ledger sequence: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	_, checkpoint, cleanup, err := openStorage(ctx, cfg)
	if err != nil {
		slog.Error("Failed to open storage", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	if err := checkpoint.Save(ctx, uint32(ledger)); err != nil {
		slog.Error("Failed to reset cursor", "error", err)
		os.Exit(1)
	}
	fmt.Printf("Successfully reset cursor to ledger %d\n", ledger)
}
