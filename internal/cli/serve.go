package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rcliao/roomverse/internal/discovery"
	"github.com/rcliao/roomverse/internal/llm"
	"github.com/rcliao/roomverse/internal/peer"
	"github.com/rcliao/roomverse/internal/room"
	"github.com/rcliao/roomverse/internal/server"
	"github.com/rcliao/roomverse/internal/translate"
)

func init() {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the room server",
		Long:  "Start the HTTP server, accept visitors, and announce the room to the discovery service when one is configured.",
		Run:   runServe,
	}

	RootCmd.AddCommand(cmd)
}

func runServe(cmd *cobra.Command, args []string) {
	s, cfg, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	var tr translate.Translator = translate.Noop{}
	if cfg.Character.Language != "" {
		tr = translate.NewGoogleClient("")
	}

	r := room.New(cfg, s, llm.NewClient(cfg.LLM, cfg.Character), tr, logger)
	dispatcher := room.NewDispatcher(r,
		peer.NewClient(time.Duration(cfg.Agent.TimeoutSecs)*time.Second),
		cfg.InstanceID,
		cfg.Agent.MaxTurns,
		time.Duration(cfg.Agent.PacingSecs)*time.Second,
		logger)
	srv := server.New(r, dispatcher, s, logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("room open",
			zap.String("character", cfg.Character.Name),
			zap.String("addr", addr))
		if err := httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})

	if cfg.Discovery.URL != "" {
		announcer := room.NewAnnouncer(
			discovery.NewHTTPClient(cfg.Discovery.URL),
			cfg.InstanceID,
			cfg.Discovery.PublicURL,
			cfg.Character.Name,
			time.Duration(cfg.Discovery.AnnounceInterval)*time.Second,
			logger)
		g.Go(func() error { return announcer.Run(ctx) })
	}

	err = g.Wait()
	dispatcher.Wait()

	if err != nil && !errors.Is(err, context.Canceled) {
		exitErr("serve", err)
	}
	logger.Info("room closed")
}
