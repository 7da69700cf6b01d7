package commands

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/54b3r/pharmabot/internal/config"
	"github.com/54b3r/pharmabot/internal/logging"
)

// NewHistoryCmd constructs the `pharmabot history` command group for
// inspecting and clearing a user's stored conversation.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List or clear a user's conversation history",
	}
	cmd.AddCommand(newHistoryListCmd(), newHistoryClearCmd())
	return cmd
}

// historyTurn is the JSON shape printed by `history list`.
type historyTurn struct {
	SessionID string    `json:"session_id"`
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	CreatedAt time.Time `json:"created_at"`
}

func newHistoryListCmd() *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Print a user's turns as JSON, oldest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()

			settings, err := config.FromEnv()
			if err != nil {
				return fmt.Errorf("history: %w", err)
			}
			hs, err := openHistory(ctx, settings, log)
			if err != nil {
				return fmt.Errorf("history: %w", err)
			}
			defer func() { _ = hs.Close() }()

			turns, err := hs.History(ctx, userID)
			if err != nil {
				return fmt.Errorf("history: %w", err)
			}
			out := make([]historyTurn, len(turns))
			for i, t := range turns {
				out[i] = historyTurn{SessionID: t.SessionID, Question: t.Question, Answer: t.Answer, CreatedAt: t.CreatedAt}
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out) //nolint:wrapcheck // CLI entry point, error goes directly to cobra
		},
	}
	cmd.Flags().StringVarP(&userID, "user", "u", defaultCLIUser, "User ID")
	return cmd
}

func newHistoryClearCmd() *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every stored turn for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()

			settings, err := config.FromEnv()
			if err != nil {
				return fmt.Errorf("history: %w", err)
			}
			hs, err := openHistory(ctx, settings, log)
			if err != nil {
				return fmt.Errorf("history: %w", err)
			}
			defer func() { _ = hs.Close() }()

			if err := hs.Clear(ctx, userID); err != nil {
				return fmt.Errorf("history: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Chat history for user %s has been cleared.\n", userID)
			return nil
		},
	}
	cmd.Flags().StringVarP(&userID, "user", "u", defaultCLIUser, "User ID")
	return cmd
}
