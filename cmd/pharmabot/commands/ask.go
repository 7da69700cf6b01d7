package commands

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/54b3r/pharmabot/internal/chat"
	"github.com/54b3r/pharmabot/internal/logging"
	"github.com/54b3r/pharmabot/internal/tracing"
)

// defaultCLIUser is the user ID under which CLI turns are stored.
const defaultCLIUser = "cli"

// NewAskCmd constructs the `pharmabot ask` command, which runs one question
// through the pipeline and prints the reply to stdout.
func NewAskCmd() *cobra.Command {
	var userID string
	var sessionID string
	var imagePath string

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask the pharmacy assistant a question",
		Long: `Ask a single question and print the answer.

The turn is stored in the conversation history under --user, so later
questions from the same user see it as context. With --image the question is
read from the image instead of the arguments.

Examples:
  pharmabot ask "what is the maximum daily dose of paracetamol?"
  pharmabot ask --user alice "and for children?"
  pharmabot ask --image ./prescription.png`,
		Args: func(cmd *cobra.Command, args []string) error {
			if imagePath == "" && len(args) == 0 {
				return errors.New("ask: a question or --image is required")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			log, closeLog, err := logging.Open()
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			defer func() { _ = closeLog() }()
			ctx := logging.WithLogger(cmd.Context(), log)

			flush := tracing.Enable(log)
			defer flush()

			a, err := buildApp(ctx, log)
			if err != nil {
				return fmt.Errorf("ask: %w", err)
			}
			defer a.close(log)

			orch, err := a.orchestrator(nil)
			if err != nil {
				return fmt.Errorf("ask: failed to initialise orchestrator: %w", err)
			}

			in := chat.Input{
				UserID:    userID,
				SessionID: sessionID,
				Question:  strings.Join(args, " "),
			}
			if imagePath != "" {
				img, err := os.ReadFile(imagePath)
				if err != nil {
					return fmt.Errorf("ask: read image: %w", err)
				}
				in.IsImage, in.Image = true, img
			}

			res := orch.Answer(ctx, in)
			fmt.Fprintln(cmd.OutOrStdout(), res.Reply)

			if res.Status == chat.StatusFailed || res.Status == chat.StatusAnswerNotSaved {
				return fmt.Errorf("ask: %s: %w", res.Stage, res.Err)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&userID, "user", "u", defaultCLIUser, "User ID the turn is stored under")
	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "Session ID (default: resolved per user)")
	cmd.Flags().StringVarP(&imagePath, "image", "i", "", "Read the question from this image")

	return cmd
}
