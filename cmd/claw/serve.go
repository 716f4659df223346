package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/aschepis/backscratcher/claw/agent"
	"github.com/aschepis/backscratcher/claw/chat"
	"github.com/aschepis/backscratcher/claw/chat/telegram"
	"github.com/aschepis/backscratcher/claw/llm"
	"github.com/aschepis/backscratcher/claw/llm/openai"
	"github.com/aschepis/backscratcher/claw/runtime"
	"github.com/aschepis/backscratcher/claw/server"
	"github.com/aschepis/backscratcher/claw/tools"
	"github.com/aschepis/backscratcher/claw/voice"
)

func newServeCommand(flags *globalFlags) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the Telegram bot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup(flags, true)
			if err != nil {
				return err
			}
			if listen != "" {
				cfg.Ops.Listen = listen
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			logger.Info().
				Str("version", version).
				Str("model", cfg.LLM.Model).
				Str("backend", cfg.Memory.Backend).
				Str("scope", cfg.Memory.Scope).
				Msg("Gravity Claw starting")

			// ---------------------------
			// 1. Open SQLite + Memory
			// ---------------------------

			stack, err := openMemory(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer stack.Close()

			// ---------------------------
			// 2. Register Tools
			// ---------------------------

			registry := tools.NewRegistry(logger)
			registry.RegisterSystemTools(nil)
			registry.RegisterMemoryTools(stack.memory)

			// ---------------------------
			// 3. Create LLM Client + Agent
			// ---------------------------

			base, err := openai.NewClient(cfg.LLM.APIKey, cfg.LLM.BaseURL, cfg.LLM.Model)
			if err != nil {
				return fmt.Errorf("failed to create llm client: %w", err)
			}
			client := llm.WrapWithMiddleware(
				llm.WithRetry(base, llm.RetryConfig{MaxRetries: cfg.LLM.MaxRetries}, logger),
				llm.LoggingMiddleware(logger),
				llm.MetricsMiddleware(),
			)

			loop, err := agent.NewLoop(client, stack.memory, registry, agent.Config{
				Model:         cfg.LLM.Model,
				MaxIterations: cfg.LLM.MaxIterations,
				MaxTokens:     cfg.LLM.MaxTokens,
				RecentLimit:   cfg.Memory.RecentLimit,
				RecallTopK:    cfg.Memory.RecallTopK,
			}, logger)
			if err != nil {
				return fmt.Errorf("failed to create agent: %w", err)
			}

			// ---------------------------
			// 4. Connect Telegram + Chat Service
			// ---------------------------

			var transcriber chat.Transcriber
			if cfg.Voice.Disabled {
				logger.Info().Msg("Voice transcription is disabled")
			} else {
				t, err := voice.New(voice.Options{
					APIKey:  cfg.Voice.APIKey,
					BaseURL: cfg.Voice.BaseURL,
					Model:   cfg.Voice.Model,
				}, logger)
				if err != nil {
					return fmt.Errorf("failed to create transcriber: %w", err)
				}
				transcriber = t
			}

			bot, err := telegram.New(telegram.Options{
				Token:       cfg.Telegram.Token,
				BaseURL:     cfg.Telegram.BaseURL,
				PollTimeout: cfg.Telegram.PollTimeoutDuration(),
			}, logger)
			if err != nil {
				return err
			}
			me, err := bot.GetMe(ctx)
			if err != nil {
				return fmt.Errorf("failed to reach telegram: %w", err)
			}

			svc, err := chat.NewService(loop, stack.memory, transcriber, bot, chat.Config{
				AllowedUserIDs: cfg.Telegram.AllowedUserIDs,
				TurnTimeout:    cfg.Chat.TurnTimeoutDuration(),
			}, logger)
			if err != nil {
				return err
			}
			defer svc.Stop()

			// ---------------------------
			// 5. Start Reconciler
			// ---------------------------

			scheduler, err := runtime.NewScheduler(stack.memory, cfg.Memory.ReconcileSchedule, cfg.Memory.ReindexBatch, logger)
			if err != nil {
				return fmt.Errorf("failed to create reconciler: %w", err)
			}
			go scheduler.Start(ctx)

			// ---------------------------
			// 6. Start Ops Server
			// ---------------------------

			serverErr := make(chan error, 1)
			var srv *server.Server
			if cfg.Ops.Listen != "" {
				srv = server.New(server.Config{
					Version: version,
					Model:   cfg.LLM.Model,
					Logger:  logger,
				}, registry, stack.db)
				go func() {
					logger.Info().Str("address", cfg.Ops.Listen).Msg("Starting ops server")
					serverErr <- srv.ServeTCP(cfg.Ops.Listen)
				}()
			}

			// ---------------------------
			// 7. Poll Telegram
			// ---------------------------

			botErr := make(chan error, 1)
			go func() {
				botErr <- bot.Run(ctx, svc.Handle)
			}()
			logger.Info().
				Str("bot", me.Username).
				Int("allowed_users", len(cfg.Telegram.AllowedUserIDs)).
				Msg("Gravity Claw online")

			botDone := false
			select {
			case <-ctx.Done():
				logger.Info().Msg("Received shutdown signal")
			case err = <-serverErr:
				stop()
				if err != nil {
					err = fmt.Errorf("ops server: %w", err)
				}
			case err = <-botErr:
				botDone = true
				stop()
			}

			if !botDone {
				<-botErr
			}
			if srv != nil {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil && !errors.Is(shutdownErr, context.DeadlineExceeded) {
					logger.Warn().Err(shutdownErr).Msg("Ops server shutdown failed")
				}
			}
			logger.Info().Msg("Shutdown complete")
			return err
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "Ops HTTP address (e.g. localhost:9090); overrides ops.listen")
	return cmd
}
