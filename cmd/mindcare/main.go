package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MattCruikshank/mindcare/client"
	"github.com/MattCruikshank/mindcare/internal/logging"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"tailscale.com/tsnet"
)

type options struct {
	server   string
	name     string
	logLevel string
	timeout  time.Duration
	tailnet  string

	ts *tsnet.Server // set when --tailnet is given
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	// Missing .env is the normal case.
	_ = godotenv.Load()

	opts := &options{}
	root := &cobra.Command{
		Use:           "mindcare",
		Short:         "Terminal client for a MindCare server",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.tailnet == "" {
				return nil
			}
			log, err := opts.logger()
			if err != nil {
				return err
			}
			opts.ts, err = tailnetNode(cmd.Context(), opts.tailnet, log)
			return err
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if opts.ts == nil {
				return nil
			}
			return opts.ts.Close()
		},
	}

	defServer := os.Getenv("MINDCARE_SERVER")
	if defServer == "" {
		defServer = "http://localhost:8080"
	}
	root.PersistentFlags().StringVar(&opts.server, "server", defServer, "server base URL (env MINDCARE_SERVER)")
	root.PersistentFlags().StringVar(&opts.name, "name", os.Getenv("MINDCARE_NAME"), "display name used in the forum")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "log level")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 30*time.Second, "request timeout")
	root.PersistentFlags().StringVar(&opts.tailnet, "tailnet", "", "join the tailnet under this hostname and reach the server through it")

	root.AddCommand(
		newForumCmd(opts),
		newChatCmd(opts),
		newScreenCmd(opts),
		newResourcesCmd(opts),
		newCounselorsCmd(opts),
		newSlotsCmd(opts),
		newCalendarCmd(),
		newBookCmd(opts),
		newAnalyticsCmd(opts),
	)
	return root
}

func (o *options) logger() (*zap.Logger, error) {
	return logging.New(o.logLevel, true)
}

func (o *options) api() *client.APIClient {
	api := client.NewAPIClient(o.server, o.name)
	if o.ts != nil {
		api.SetHTTPClient(tailnetHTTPClient(o.ts, o.timeout))
	}
	return api
}
