package cli

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"medichat/internal/answer"
	"medichat/internal/chat"
	"medichat/internal/logger"
	"medichat/internal/tui"
)

var (
	logFile string
	plain   bool
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start a conversation with the medical assistant",
	Long: `Open a new consultation session and chat with the answer service.
A full-screen UI is used on terminals; otherwise input is read line by line.`,
	RunE: runChat,
}

func init() {
	chatCmd.Flags().StringVar(&logFile, "log-file", "", "append logs to this file instead of discarding them in the UI")
	chatCmd.Flags().BoolVar(&plain, "plain", false, "use the line-based interface even on a terminal")
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	interactive := !plain && tui.IsTTY()

	var out io.Writer = io.Discard
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		defer f.Close()
		out = f
	} else if !interactive {
		out = os.Stderr
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Format, out)

	st, closeStore, err := openStore(cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	client := answer.NewClient(cfg.Chat.AnswerURL, time.Duration(cfg.Chat.AnswerTimeout)*time.Second)
	controller := chat.NewController(st, client,
		chat.WithLogger(log),
		chat.WithSessionTitle(cfg.Chat.SessionTitle),
	)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if interactive {
		return tui.Run(ctx, controller, os.Stdin, os.Stdout)
	}
	return tui.RunREPL(ctx, controller, cmd.InOrStdin(), cmd.OutOrStdout())
}
