package main

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/urfave/cli/v3"
	"github.com/wastorga/sim/pkg/testtoken"
)

// TokenCommand issues a test URL offline, for operators without access to the API.
func TokenCommand() *cli.Command {
	return &cli.Command{
		Name:  "token",
		Usage: "Issue a signed test URL for a webhook",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "webhook-id",
				Usage:    "Webhook the token is bound to",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "workflow-id",
				Usage: "Workflow that owns the webhook",
			},
			&cli.StringFlag{
				Name:     "test-token-secret",
				Usage:    "HMAC key of test webhook tokens",
				Required: true,
				Sources:  cli.EnvVars("TEST_TOKEN_SECRET", "INTERNAL_API_SECRET"),
			},
			&cli.DurationFlag{
				Name:  "ttl",
				Usage: "Token lifetime",
				Value: 24 * time.Hour,
			},
			&cli.StringFlag{
				Name:    "base-url",
				Usage:   "Public base URL of the service",
				Value:   "http://localhost:3000",
				Sources: cli.EnvVars("BASE_URL", "NEXT_PUBLIC_APP_URL"),
			},
		},
		Action: func(_ context.Context, command *cli.Command) error {
			issuer, err := testtoken.NewIssuer(command.String("test-token-secret"), command.Duration("ttl"))
			if err != nil {
				return err
			}

			webhookID := command.String("webhook-id")

			token, expiresAt, err := issuer.Issue(webhookID, command.String("workflow-id"))
			if err != nil {
				return err
			}

			testURL := strings.TrimRight(command.String("base-url"), "/") +
				"/api/webhooks/test/" + url.PathEscape(webhookID) + "?token=" + url.QueryEscape(token)

			_, err = fmt.Fprintf(command.Root().Writer, "%s\nexpires at %s\n", testURL, expiresAt.UTC().Format(time.RFC3339))

			return err
		},
	}
}
