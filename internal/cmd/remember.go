package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/natthamonpisit/PARA-Brain-sub001/internal/config"
	"github.com/natthamonpisit/PARA-Brain-sub001/internal/store"
)

var rememberKind string

var rememberCmd = &cobra.Command{
	Use:   "remember <text>",
	Short: "Store a long-term fact or lesson the assistant grounds replies on",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runRemember,
}

func init() {
	rememberCmd.Flags().StringVar(&rememberKind, "kind", "fact", "knowledge kind: fact or lesson")
	rootCmd.AddCommand(rememberCmd)
}

func runRemember(cmd *cobra.Command, args []string) error {
	if rememberKind != "fact" && rememberKind != "lesson" {
		return fmt.Errorf("kind must be fact or lesson (got %q)", rememberKind)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.EnsureDataDir(); err != nil {
		return fmt.Errorf("preparing data dir: %w", err)
	}
	st, err := store.New(cfg.DBPath())
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer st.Close()

	content := strings.Join(args, " ")
	if err := st.AddKnowledge(cmd.Context(), rememberKind, content); err != nil {
		return fmt.Errorf("storing %s: %w", rememberKind, err)
	}
	fmt.Printf("Remembered %s.\n", rememberKind)
	return nil
}
