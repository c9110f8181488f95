package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/cloo-solutions/docchat/internal/domain"
	"github.com/spf13/cobra"
)

// HistoryCmd creates the history command.
func HistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history --session <id>",
		Short: "Show the turns of a chat session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sessionID, _ := cmd.Flags().GetString(flagSession)
			outputJSON, _ := cmd.Flags().GetBool("output")
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			turns, err := NewAPIClientWithCmd(cmd).History(ctx, sessionID)
			if err != nil {
				return err
			}
			return printHistory(cmd.OutOrStdout(), turns, outputJSON)
		},
	}

	cmd.Flags().StringP(flagSession, "s", "", "Session id")
	_ = cmd.MarkFlagRequired(flagSession)

	return cmd
}

func printHistory(out io.Writer, turns []domain.ChatTurn, outputJSON bool) error {
	if outputJSON {
		if turns == nil {
			turns = []domain.ChatTurn{}
		}
		return json.NewEncoder(out).Encode(turns)
	}

	if len(turns) == 0 {
		fmt.Fprintln(out, "No turns in this session.")
		return nil
	}
	for _, turn := range turns {
		label := "You"
		if turn.Role == domain.ChatRoleAssistant {
			label = "Assistant"
		}
		fmt.Fprintf(out, "%s: %s\n\n", label, turn.Text)
	}
	return nil
}
