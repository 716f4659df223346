package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aschepis/backscratcher/claw/config"
	"github.com/aschepis/backscratcher/claw/conversations"
)

func newReindexCommand(flags *globalFlags) *cobra.Command {
	var batch int

	cmd := &cobra.Command{
		Use:   "reindex",
		Short: "Index stored messages that have no vector entry yet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup(flags, false)
			if err != nil {
				return err
			}
			if batch <= 0 {
				batch = cfg.Memory.ReindexBatch
			}
			stack, err := openMemory(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer stack.Close()

			queued, err := stack.memory.Reindex(cmd.Context(), batch)
			if err != nil {
				return err
			}
			// Close drains the queue before the process exits.
			if err := stack.memory.Close(); err != nil {
				return err
			}
			stack.memory = nil

			remaining, err := stack.store.Unindexed(cmd.Context(), batch)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "queued %d messages, %d still unindexed\n", queued, len(remaining))
			return nil
		},
	}
	cmd.Flags().IntVar(&batch, "batch", 0, "Maximum messages to re-index (default from config)")
	return cmd
}

func newRecallCommand(flags *globalFlags) *cobra.Command {
	var (
		conversationID string
		limit          int
	)

	cmd := &cobra.Command{
		Use:   "recall <query>",
		Short: "Search long-term memory",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(flags, false)
			if err != nil {
				return err
			}
			if conversationID == "" {
				cfg.Memory.Scope = "global"
			}
			stack, err := openMemory(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer stack.Close()

			records := stack.memory.Recall(cmd.Context(), conversationID, strings.Join(args, " "), limit)
			out := cmd.OutOrStdout()
			if len(records) == 0 {
				fmt.Fprintln(out, "No matching memories found.")
				return nil
			}
			for _, r := range records {
				fmt.Fprintf(out, "%.3f  [%s] %s/%s: %s\n", r.Score, r.Timestamp, r.ConversationID, r.Role, r.Text)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&conversationID, "conversation", "", "Restrict to one conversation (chat id); empty searches all")
	cmd.Flags().IntVar(&limit, "limit", 5, "Maximum records")
	return cmd
}

func newHistoryCommand(flags *globalFlags) *cobra.Command {
	var (
		conversationID string
		limit          int
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print the most recent messages of a conversation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if conversationID == "" {
				return errors.New("--conversation is required")
			}
			cfg, logger, err := setup(flags, false)
			if err != nil {
				return err
			}
			db, err := openDatabase(cfg.DBPath, logger)
			if err != nil {
				return err
			}
			defer db.Close() //nolint:errcheck // No remedy for db close errors

			store := conversations.NewStore(db, logger)
			msgs, err := store.Recent(cmd.Context(), conversationID, limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, m := range msgs {
				indexed := " "
				if m.ExternalID != nil {
					indexed = "*"
				}
				fmt.Fprintf(out, "%s %5d [%s] %s: %s\n", indexed, m.ID, m.Timestamp, m.Role, m.Content)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&conversationID, "conversation", "", "Conversation (chat id)")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum messages")
	return cmd
}

func newConfigCommand(flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a config file with the default settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := os.Stat(flags.configPath); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", flags.configPath)
			}
			cfg := config.Defaults()
			if err := config.Save(&cfg, flags.configPath); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", flags.configPath)
			fmt.Fprintln(cmd.OutOrStdout(), "Secrets are read from TELEGRAM_BOT_TOKEN, OPENROUTER_API_KEY, GROQ_API_KEY, PINECONE_API_KEY and ALLOWED_USER_IDS.")
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")

	cmd.AddCommand(initCmd)
	return cmd
}
