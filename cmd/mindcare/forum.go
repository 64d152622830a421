package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/MattCruikshank/mindcare/client"
	"github.com/MattCruikshank/mindcare/internal/auth"
	"github.com/spf13/cobra"
)

const forumHelp = `commands:
  list                                 show the thread list
  open <id>                            open a thread
  to <author>                          address your next reply
  cancel                               drop the reply-to
  reply <text>                         reply to the open thread
  new <title> | <category> | <message> start a thread
  quit`

func newForumCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "forum",
		Short: "Join the live peer support forum",
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := opts.logger()
			if err != nil {
				return err
			}
			defer log.Sync()

			wsURL, err := client.WebSocketURL(opts.server)
			if err != nil {
				return err
			}
			header := http.Header{}
			if opts.name != "" {
				header.Set(auth.NameHeader, opts.name)
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			loop := client.NewLoop(64)
			channel := client.NewWSChannel(wsURL, header, loop, log.Named("realtime"))
			if opts.ts != nil {
				channel.SetDialer(tailnetDialer(opts.ts))
			}
			defer channel.Close()

			out := cmd.OutOrStdout()
			engine := client.NewEngine(client.NewThreadStore(), channel, opts.api(), client.NewTextView(out), loop, log.Named("forum"))
			if err := engine.Start(ctx); err != nil {
				return err
			}
			fmt.Fprintln(out, forumHelp)

			go readCommands(ctx, cmd.InOrStdin(), loop, engine, out, cancel)

			if err := loop.Run(ctx); err != nil && err != context.Canceled {
				return err
			}
			return nil
		},
	}
}

// readCommands turns input lines into engine calls on the loop.
func readCommands(ctx context.Context, in io.Reader, loop *client.Loop, engine *client.Engine, out io.Writer, quit func()) {
	defer quit()
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		verb, rest, _ := strings.Cut(line, " ")
		rest = strings.TrimSpace(rest)
		if verb == "quit" || verb == "exit" {
			return
		}
		loop.Post(func() { runCommand(ctx, engine, out, verb, rest) })
	}
}

// runCommand executes one forum command. It must run on the engine's loop.
func runCommand(ctx context.Context, engine *client.Engine, out io.Writer, verb, rest string) {
	switch verb {
	case "list":
		engine.ShowList(ctx)
	case "open":
		id, err := strconv.ParseInt(rest, 10, 64)
		if err != nil || id <= 0 {
			fmt.Fprintln(out, "usage: open <id>")
			return
		}
		engine.OpenThread(ctx, id)
	case "to":
		if rest == "" {
			fmt.Fprintln(out, "usage: to <author>")
			return
		}
		engine.BeginReplyTo(rest)
	case "cancel":
		engine.CancelReplyTo()
	case "reply":
		// Each reply line is the whole text, so a failed send can be retried
		// with the same line.
		text := rest
		composer := engine.Composer()
		if rc := composer.Context(); rc != nil {
			text = client.MentionPrefix(rc.TargetAuthor) + rest
		}
		composer.SetText(text)
		if err := engine.SubmitReply(text); errors.Is(err, client.ErrNoThreadOpen) {
			fmt.Fprintln(out, "open a thread first")
		}
	case "new":
		parts := strings.SplitN(rest, "|", 3)
		for len(parts) < 3 {
			parts = append(parts, "")
		}
		engine.SubmitNewThread(parts[0], parts[1], parts[2])
	default:
		fmt.Fprintln(out, forumHelp)
	}
}

