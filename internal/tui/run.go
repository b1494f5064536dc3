package tui

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"medichat/internal/chat"
)

// Run starts the full-screen chat UI and blocks until the user quits.
func Run(ctx context.Context, conv Conversation, in io.Reader, out io.Writer) error {
	p := tea.NewProgram(NewModel(ctx, conv), tea.WithAltScreen(), tea.WithContext(ctx), tea.WithInput(in), tea.WithOutput(out))
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

// RunREPL is the line-based chat used when stdout is not a terminal.
// "/retry" answers an unanswered message again and "/quit" exits.
func RunREPL(ctx context.Context, conv Conversation, in io.Reader, out io.Writer) error {
	if err := conv.Initialize(ctx); err != nil {
		return err
	}
	printed := printNew(out, conv.Render(), 0)

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())

		var err error
		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/retry":
			_, err = conv.Retry(ctx)
		default:
			_, err = conv.Send(ctx, line)
		}

		view := conv.Render()
		printed = printNew(out, view, printed)
		if err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
			if view.CanRetry {
				fmt.Fprintln(out, "type /retry to ask again")
			}
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

// printNew writes the messages after the first skip and returns the new count.
func printNew(out io.Writer, view chat.View, skip int) int {
	for _, mv := range view.Messages[min(skip, len(view.Messages)):] {
		fmt.Fprintln(out, FormatPlain(mv))
	}
	return len(view.Messages)
}

// FormatPlain renders a message without styling.
func FormatPlain(mv chat.MessageView) string {
	if mv.Timestamp == "" {
		return fmt.Sprintf("%s: %s", mv.Sender, mv.Content)
	}
	return fmt.Sprintf("[%s] %s: %s", mv.Timestamp, mv.Sender, mv.Content)
}
