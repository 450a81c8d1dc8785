package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"commerce-agent/internal/agentclient"
	"commerce-agent/internal/errs"
	"commerce-agent/internal/models"
	"commerce-agent/internal/util"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type cliOptions struct {
	server   string
	clientID string
	retries  int
	verbose  bool
}

func defaultServer() string {
	if v := os.Getenv("AGENT_URL"); v != "" {
		return v
	}
	return "http://localhost:8787"
}

func newRootCmd() *cobra.Command {
	opts := &cliOptions{}

	root := &cobra.Command{
		Use:           "chat",
		Short:         "Talk to the commerce agent",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			if !opts.verbose {
				util.SetLogger(zap.NewNop())
			}
		},
	}
	root.PersistentFlags().StringVar(&opts.server, "server", defaultServer(), "agent base URL")
	root.PersistentFlags().StringVar(&opts.clientID, "client-id", "", "conversation id (random when empty)")
	root.PersistentFlags().IntVar(&opts.retries, "retries", agentclient.DefaultRetries, "stream retries on transport failures")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log client diagnostics to stderr")

	root.AddCommand(
		newAskCmd(opts),
		newShellCmd(opts),
		newSearchCmd(opts),
		newBuyCmd(opts),
		newOrdersCmd(opts),
		newStatusCmd(opts),
	)
	return root
}

func (o *cliOptions) client() *agentclient.Client {
	if o.clientID == "" {
		o.clientID = uuid.NewString()
	}
	return agentclient.New(o.server,
		agentclient.WithClientID(o.clientID),
		agentclient.WithRetries(o.retries))
}

func newAskCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ask <message...>",
		Short: "Send one message and print the streamed reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ask(cmd, opts.client(), strings.Join(args, " "))
		},
	}
}

func newShellCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Chat interactively, one message per line",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client := opts.client()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Connected to %s as %s. Empty line or Ctrl-D quits.\n", opts.server, opts.clientID)

			scanner := bufio.NewScanner(cmd.InOrStdin())
			for {
				fmt.Fprint(out, "> ")
				if !scanner.Scan() {
					fmt.Fprintln(out)
					return scanner.Err()
				}
				line := strings.TrimSpace(scanner.Text())
				if line == "" {
					return nil
				}
				if err := ask(cmd, client, line); err != nil {
					if errors.Is(err, errs.ErrCanceled) {
						return nil
					}
					fmt.Fprintln(cmd.ErrOrStderr(), "Error:", err)
				}
			}
		},
	}
}

// ask streams one reply. Retry notices go to stderr.
func ask(cmd *cobra.Command, client *agentclient.Client, prompt string) error {
	out := cmd.OutOrStdout()
	onRetry := func(info agentclient.RetryInfo) {
		fmt.Fprintf(cmd.ErrOrStderr(), "[retry %d in %s: %v]\n", info.Attempt, info.Delay, info.Err)
	}

	err := client.Chat(cmd.Context(), prompt, func(ev models.StreamEvent) error {
		switch ev.Type {
		case models.StreamEventToken:
			fmt.Fprint(out, ev.Token)
		case models.StreamEventCatalog:
			fmt.Fprintln(out)
			printItems(out, ev.Items)
		case models.StreamEventOrder:
			fmt.Fprintln(out)
			printOrder(out, *ev.Order)
		}
		return nil
	}, onRetry)
	fmt.Fprintln(out)

	switch {
	case errors.Is(err, errs.ErrCanceled):
		fmt.Fprintln(cmd.ErrOrStderr(), "(canceled)")
	case errors.Is(err, errs.ErrTransport):
		fmt.Fprintln(cmd.ErrOrStderr(), "There was a problem connecting to the agent. Please try again.")
	}
	return err
}

func newSearchCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "search [query...]",
		Short: "Search the catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := opts.client().Search(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			if len(items) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No results found.")
				return nil
			}
			printItems(cmd.OutOrStdout(), items)
			return nil
		},
	}
}

func newBuyCmd(opts *cliOptions) *cobra.Command {
	var qty int
	cmd := &cobra.Command{
		Use:   "buy <item-id>",
		Short: "Place an order directly without a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			record, err := opts.client().CreateOrder(cmd.Context(), args[0], qty)
			if err != nil {
				if errors.Is(err, errs.ErrNotFound) {
					return fmt.Errorf("item %s not found", args[0])
				}
				return err
			}
			printOrder(cmd.OutOrStdout(), record)
			return nil
		},
	}
	cmd.Flags().IntVarP(&qty, "qty", "q", 1, "quantity")
	return cmd
}

func newOrdersCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "orders",
		Short: "List placed orders",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			orders, err := opts.client().ListOrders(cmd.Context())
			if err != nil {
				return err
			}
			if len(orders) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No orders yet.")
				return nil
			}
			for _, o := range orders {
				printOrder(cmd.OutOrStdout(), o)
			}
			return nil
		},
	}
}

func newStatusCmd(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the agent's LLM and catalog backends",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			st, err := opts.client().Status(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "backend: %s\ncatalog: %s\n", st.Backend, st.Catalog)
			return nil
		},
	}
}

func printItems(w io.Writer, items []models.CatalogItem) {
	for _, it := range items {
		fmt.Fprintf(w, "  %-8s %-40s $%.2f\n", it.ID, it.Title, it.Price)
	}
}

func printOrder(w io.Writer, o models.OrderRecord) {
	fmt.Fprintf(w, "  %s  %s x%d  $%.2f  %s\n", o.OrderID, o.Item.ID, o.Quantity, o.Total, o.CreatedAt.Format("2006-01-02 15:04"))
}
