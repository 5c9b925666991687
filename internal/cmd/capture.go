package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/natthamonpisit/PARA-Brain-sub001/internal/capture"
	"github.com/natthamonpisit/PARA-Brain-sub001/internal/config"
)

var captureJSON bool

var captureCmd = &cobra.Command{
	Use:   "capture <message>",
	Short: "Run one message through the capture pipeline from the terminal",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runCapture,
}

func init() {
	captureCmd.Flags().BoolVar(&captureJSON, "json", false, "print the full result envelope as JSON")
	rootCmd.AddCommand(captureCmd)
}

func runCapture(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	pipeline, st, err := buildPipeline(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	env, err := pipeline.Capture(cmd.Context(), &capture.CaptureRequest{
		Message: strings.Join(args, " "),
		Channel: capture.ChannelAPI,
	})
	if err != nil {
		return err
	}

	if captureJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(env)
	}

	fmt.Println(env.Reply)
	if len(env.CreatedItems) > 0 {
		fmt.Printf("(%d record(s) created, status %s)\n", len(env.CreatedItems), env.Status)
	}
	return nil
}
