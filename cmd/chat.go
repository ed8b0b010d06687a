package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/avaestate/ava-agent/internal/agent/model"
)

const chatHelp = `Commands:
  /audio <file>            send a voice note
  /image <file> [caption]  send a picture
  /reset                   forget this conversation
  /quit                    leave`

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Talk to the agent interactively",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, thread, err := setup(cmd)
		if err != nil {
			return err
		}
		defer a.Close()
		return chatLoop(cmd.Context(), a.runner, thread, cmd.InOrStdin(), cmd.OutOrStdout())
	},
}

// turnRunner is the part of the runner the REPL drives.
type turnRunner interface {
	ProcessTurn(ctx context.Context, threadID string, in model.Inbound) (*model.ConversationState, error)
	Reset(ctx context.Context, threadID string) error
}

func chatLoop(ctx context.Context, runner turnRunner, thread string, r io.Reader, w io.Writer) error {
	fmt.Fprintln(w, titleStyle.Render("Ava")+metaStyle.Render(" · thread "+thread+" · /help for commands"))

	scanner := bufio.NewScanner(r)
	for {
		fmt.Fprint(w, userStyle.Render("you› "))
		if !scanner.Scan() {
			fmt.Fprintln(w)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())

		in, quit, err := parseChatLine(line)
		switch {
		case quit:
			return nil
		case err != nil:
			fmt.Fprintln(w, errorStyle.Render(err.Error()))
			continue
		case line == "/help":
			fmt.Fprintln(w, metaStyle.Render(chatHelp))
			continue
		case line == "/reset":
			if err := runner.Reset(ctx, thread); err != nil {
				fmt.Fprintln(w, errorStyle.Render(err.Error()))
			} else {
				fmt.Fprintln(w, metaStyle.Render("conversation cleared"))
			}
			continue
		case in.Empty():
			continue
		}

		out, err := runner.ProcessTurn(ctx, thread, in)
		if err != nil {
			fmt.Fprintln(w, errorStyle.Render(err.Error()))
			if ctx.Err() != nil {
				return ctx.Err()
			}
			continue
		}
		path, err := saveAudio(audioOut, thread, out, time.Now())
		if err != nil {
			fmt.Fprintln(w, errorStyle.Render(err.Error()))
		}
		fmt.Fprint(w, renderTurn(out, path))
	}
}

// parseChatLine turns a REPL line into an inbound message. Control commands
// (/help, /reset) yield an empty message.
func parseChatLine(line string) (in model.Inbound, quit bool, err error) {
	if !strings.HasPrefix(line, "/") {
		return model.Inbound{Text: line}, false, nil
	}
	command, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)
	switch command {
	case "/quit", "/exit":
		return in, true, nil
	case "/help", "/reset":
		return in, false, nil
	case "/audio":
		if rest == "" {
			return in, false, fmt.Errorf("usage: /audio <file>")
		}
		in, err = inboundFromFlags("", rest, "")
		return in, false, err
	case "/image":
		if rest == "" {
			return in, false, fmt.Errorf("usage: /image <file> [caption]")
		}
		file, caption, _ := strings.Cut(rest, " ")
		in, err = inboundFromFlags(strings.TrimSpace(caption), "", file)
		return in, false, err
	default:
		return in, false, fmt.Errorf("unknown command %s, try /help", command)
	}
}
