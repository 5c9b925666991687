package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/natthamonpisit/PARA-Brain-sub001/internal/config"
	"github.com/natthamonpisit/PARA-Brain-sub001/internal/digest"
	"github.com/natthamonpisit/PARA-Brain-sub001/internal/server"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the capture server with the Telegram webhook and digest scheduler",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if serveAddr != "" {
		cfg.ListenAddr = serveAddr
	}

	pipeline, st, err := buildPipeline(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	sender := buildSender(cfg)

	var apiKeys []string
	if cfg.APIKey != "" {
		apiKeys = []string{cfg.APIKey}
	} else {
		log.Warn().Msg("api_auth_disabled")
	}

	srv := server.NewServer(pipeline, st, apiKeys,
		server.WithSender(sender),
		server.WithWebhookSecret(cfg.TelegramWebhookSecret),
		server.WithAllowedChatIDs(cfg.TelegramAllowedChats),
		server.WithImageMaxBytes(cfg.ImageMaxBytes),
	)

	var scheduler *digest.Scheduler
	if cfg.DigestEnabled && len(cfg.TelegramAllowedChats) > 0 {
		d := digest.New(st, sender, cfg.TelegramAllowedChats[0], cfg.Location())
		scheduler = digest.NewScheduler(d, cfg.Location())
		if err := scheduler.Start(cfg.DigestCron); err != nil {
			return err
		}
		defer scheduler.Stop()
	}

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.ListenAddr).Msg("server_listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	log.Info().Msg("server_shutting_down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
