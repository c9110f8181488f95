package client

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

const flagSession = "session"

// AskCmd creates the ask command.
func AskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a question about the documents",
		Long: `Sends a question to the docchat server and prints the answer.

Without a question argument, ask reads one question per line from stdin
until EOF or "exit". Reuse --session to continue a conversation; when it
is omitted a new session id is generated and printed.`,
		Example: `  docchat ask "What is the definition of entropy?"
  docchat ask --session lecture-3 "And how is it measured?"
  docchat ask --session lecture-3`,
		RunE: func(cmd *cobra.Command, args []string) error {
			sessionID, _ := cmd.Flags().GetString(flagSession)
			if sessionID == "" {
				sessionID = uuid.NewString()
				fmt.Fprintf(cmd.ErrOrStderr(), "session: %s\n", sessionID)
			}

			outputJSON, _ := cmd.Flags().GetBool("output")
			api := NewAPIClientWithCmd(cmd)
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			if len(args) > 0 {
				return askOnce(ctx, api, cmd.OutOrStdout(), sessionID, strings.Join(args, " "), outputJSON)
			}
			return askLoop(ctx, api, cmd.InOrStdin(), cmd.OutOrStdout(), sessionID)
		},
	}

	cmd.Flags().StringP(flagSession, "s", "", "Session id (default: a new random id)")

	return cmd
}

func askOnce(ctx context.Context, api *APIClient, out io.Writer, sessionID, question string, outputJSON bool) error {
	answer, err := api.Ask(ctx, sessionID, question)
	if err != nil {
		return err
	}

	if outputJSON {
		return json.NewEncoder(out).Encode(map[string]string{
			"session_id": sessionID,
			"response":   answer,
		})
	}
	fmt.Fprintln(out, answer)
	return nil
}

func askLoop(ctx context.Context, api *APIClient, in io.Reader, out io.Writer, sessionID string) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}

		question := strings.TrimSpace(scanner.Text())
		switch question {
		case "":
			continue
		case "exit", "quit":
			return nil
		}

		answer, err := api.Ask(ctx, sessionID, question)
		if err != nil {
			var apiErr *APIError
			if errors.As(err, &apiErr) {
				fmt.Fprintf(out, "error: %s\n\n", apiErr.Message)
				continue
			}
			return err
		}
		fmt.Fprintf(out, "%s\n\n", answer)
	}
}
