package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"medichat/internal/chat"
	"medichat/internal/logger"
	"medichat/internal/models"
	"medichat/internal/store"
	"medichat/internal/tui"
)

var historyCmd = &cobra.Command{
	Use:   "history <session-id>",
	Short: "Print the transcript of a session",
	Args:  cobra.ExactArgs(1),
	RunE:  runHistory,
}

func runHistory(cmd *cobra.Command, args []string) error {
	sessionID := strings.TrimSpace(args[0])
	if sessionID == "" {
		return fmt.Errorf("invalid session id %q", args[0])
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, closeStore, err := openStore(cfg, logger.L())
	if err != nil {
		return err
	}
	defer closeStore()

	messages, err := st.ListMessages(cmd.Context(), sessionID)
	if errors.Is(err, store.ErrSessionNotFound) {
		return fmt.Errorf("session %s not found", sessionID)
	}
	if err != nil {
		return fmt.Errorf("list messages: %w", err)
	}

	values := make([]models.Message, 0, len(messages))
	for _, m := range messages {
		values = append(values, *m)
	}
	out := cmd.OutOrStdout()
	for _, mv := range chat.RenderView(values, false).Messages {
		fmt.Fprintln(out, tui.FormatPlain(mv))
	}
	return nil
}
