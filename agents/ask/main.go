// Command ask talks to one specialist endpoint directly: list what it
// offers, probe its health or invoke a capability.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/xid"
	"github.com/spf13/cobra"

	"github.com/owulveryck/nexushealth/internal/a2a"
	"github.com/owulveryck/nexushealth/internal/cli"
	"github.com/owulveryck/nexushealth/internal/transport"
)

func main() {
	var timeout time.Duration

	root := &cobra.Command{
		Use:           "ask",
		Short:         "Ad-hoc client for Nexus Health specialists",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().DurationVarP(&timeout, "timeout", "t", 60*time.Second, "per-call timeout")

	dial := func(cmd *cobra.Command, endpoint string, fn func(context.Context, *transport.Client) error) error {
		return transport.WithClient(cmd.Context(), endpoint, fn, transport.WithCallTimeout(timeout))
	}
	out := cli.NewPrinter(os.Stdout)

	root.AddCommand(
		&cobra.Command{
			Use:   "list <endpoint>",
			Short: "List the capabilities an endpoint advertises",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return dial(cmd, args[0], func(ctx context.Context, c *transport.Client) error {
					return list(ctx, c, out)
				})
			},
		},
		&cobra.Command{
			Use:   "health <endpoint>",
			Short: "Probe an endpoint with the gRPC health protocol",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return dial(cmd, args[0], func(ctx context.Context, c *transport.Client) error {
					if err := c.Health(ctx); err != nil {
						out.Fail("%s is not serving: %v", c.Endpoint(), err)
						return err
					}
					out.Success("%s is serving", c.Endpoint())
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "invoke <endpoint> <capability> [request]",
			Short: "Send one request to a capability; without a request it is read from stdin",
			Args:  cobra.MinimumNArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				text := strings.Join(args[2:], " ")
				if strings.TrimSpace(text) == "" {
					b, err := io.ReadAll(cmd.InOrStdin())
					if err != nil {
						return fmt.Errorf("reading request: %w", err)
					}
					text = string(b)
				}
				return dial(cmd, args[0], func(ctx context.Context, c *transport.Client) error {
					return invoke(ctx, c, args[1], text, out)
				})
			},
		},
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := root.ExecuteContext(ctx); err != nil {
		cli.NewPrinter(os.Stderr).Fail("%v", err)
		os.Exit(1)
	}
}

func list(ctx context.Context, c *transport.Client, out *cli.Printer) error {
	caps, err := c.Capabilities(ctx)
	if err != nil {
		return err
	}
	if len(caps) == 0 {
		out.Warn("%s advertises no capabilities", c.Endpoint())
		return nil
	}
	out.Heading(c.Endpoint())
	for _, capability := range caps {
		out.Success("%s", capability.Name)
		out.Plain("  " + capability.Description)
	}
	return nil
}

func invoke(ctx context.Context, c *transport.Client, capability, text string, out *cli.Printer) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return errors.New("empty request")
	}

	msg := a2a.NewTextMessage(a2a.RoleUser, text).WithContext("ask_" + xid.New().String())
	start := time.Now()
	reply, err := c.Invoke(ctx, capability, msg)
	if err != nil {
		var notFound *transport.CapabilityNotFoundError
		if errors.As(err, &notFound) {
			out.Fail("%s does not offer %s", notFound.Endpoint, notFound.Capability)
		}
		return err
	}

	out.Heading(capability)
	out.Plain(reply.Text())
	out.Info("answered in %s", time.Since(start).Round(time.Millisecond))
	return nil
}
