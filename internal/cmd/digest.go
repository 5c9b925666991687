package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/natthamonpisit/PARA-Brain-sub001/internal/config"
	"github.com/natthamonpisit/PARA-Brain-sub001/internal/digest"
)

var digestSend bool

var digestCmd = &cobra.Command{
	Use:   "digest",
	Short: "Build the daily digest once and print or send it",
	RunE:  runDigest,
}

func init() {
	digestCmd.Flags().BoolVar(&digestSend, "send", false, "send through the Telegram connector instead of printing")
	rootCmd.AddCommand(digestCmd)
}

func runDigest(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	_, st, err := buildPipeline(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	var chatID int64
	if len(cfg.TelegramAllowedChats) > 0 {
		chatID = cfg.TelegramAllowedChats[0]
	}
	d := digest.New(st, buildSender(cfg), chatID, cfg.Location())

	if digestSend {
		if chatID == 0 {
			return fmt.Errorf("no telegram chat configured to send the digest to")
		}
		return d.Run(cmd.Context())
	}

	text, err := d.Render(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Println(text)
	return nil
}
