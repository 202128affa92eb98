package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	chatv1 "github.com/sentichat/sentichat/pkg/apis/chat/v1"
	"github.com/sentichat/sentichat/pkg/chatclient"
	"github.com/sentichat/sentichat/pkg/flags"
)

const chatHelp = `Type a message and press enter to send it.
  /image <path>  attach an image to the next message
  /noimage       remove the attached image
  /clear         delete this conversation
  /quit          exit`

func NewChatCommand() *cobra.Command {
	f := flags.NewClientFlags()

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with a sentichat server from the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := f.GetUserID()
			if err != nil {
				return errors.WithMessage(err, "couldn't load user id")
			}

			session := chatclient.NewSession(f.GetClient(), userID)
			return runChat(cmd.Context(), session, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	f.BindFlags(cmd.Flags())
	return cmd
}

func runChat(ctx context.Context, session *chatclient.Session, in io.Reader, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if err := session.Init(ctx); err != nil {
		fmt.Fprintf(out, "(could not load earlier messages: %v)\n", err)
	}
	for _, t := range session.Turns() {
		printTurn(out, t)
	}
	fmt.Fprintln(out, chatHelp)

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())

		switch {
		case line == "/quit":
			return nil
		case line == "/clear":
			if err := session.Clear(ctx); err != nil {
				fmt.Fprintf(out, "(conversation cleared here, but the server could not be reached: %v)\n", err)
			} else {
				fmt.Fprintln(out, "(conversation cleared)")
			}
			continue
		case line == "/noimage":
			session.RemoveImage()
			continue
		case strings.HasPrefix(line, "/image"):
			path := strings.TrimSpace(strings.TrimPrefix(line, "/image"))
			if err := session.AttachImage(path); err != nil {
				fmt.Fprintf(out, "(%v)\n", err)
			} else {
				fmt.Fprintf(out, "(attached %s)\n", path)
			}
			continue
		}

		reply, err := session.Send(ctx, line)
		switch {
		case errors.Is(err, chatclient.ErrEmptyInput):
			continue
		case err != nil:
			fmt.Fprintf(out, "bot: %s\n", chatclient.FallbackReply)
		default:
			fmt.Fprintf(out, "bot: %s\n", reply)
		}
	}
}

func printTurn(out io.Writer, t chatclient.Turn) {
	ts := t.Timestamp.Local().Format("15:04")
	if t.Type == chatv1.MessageTypeUser {
		if t.Image != "" {
			fmt.Fprintf(out, "[%s] you: %s [image: %s]\n", ts, t.Text, t.Image)
			return
		}
		fmt.Fprintf(out, "[%s] you: %s\n", ts, t.Text)
		return
	}
	fmt.Fprintf(out, "[%s] bot: %s\n", ts, t.Text)
}
