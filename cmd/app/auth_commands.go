package main

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/allisson/logvault/cmd/app/commands"
	"github.com/allisson/logvault/internal/app"
	"github.com/allisson/logvault/internal/config"
)

func getAuthCommands() []*cli.Command {
	return []*cli.Command{
		{
			Name:  "create-access-token",
			Usage: "Create a bearer token for a tenant user",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:     "tenant",
					Aliases:  []string{"t"},
					Required: true,
					Usage:    "Tenant ID",
				},
				&cli.StringFlag{
					Name:     "user",
					Aliases:  []string{"u"},
					Required: true,
					Usage:    "User ID",
				},
				&cli.StringFlag{
					Name:    "role",
					Aliases: []string{"r"},
					Value:   "member",
					Usage:   "Role: 'admin' or 'member'",
				},
				&cli.DurationFlag{
					Name:  "ttl",
					Usage: "Token lifetime (defaults to ACCESS_TOKEN_TTL)",
				},
				formatFlag(),
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg := config.Load()
				container := app.NewContainer(cfg)
				defer func() { _ = container.Shutdown(ctx) }()

				tokenUseCase, err := container.AccessTokenUseCase()
				if err != nil {
					return err
				}

				return commands.RunCreateAccessToken(
					ctx,
					tokenUseCase,
					container.Logger(),
					commands.DefaultIO().Writer,
					cmd.String("tenant"),
					cmd.String("user"),
					cmd.String("role"),
					cmd.Duration("ttl"),
					cmd.String("format"),
				)
			},
		},
		{
			Name:  "clean-expired-tokens",
			Usage: "Delete expired tokens older than specified days",
			Flags: []cli.Flag{
				&cli.IntFlag{
					Name:     "days",
					Aliases:  []string{"d"},
					Required: true,
					Usage:    "Delete expired tokens older than this many days",
				},
				&cli.BoolFlag{
					Name:    "dry-run",
					Aliases: []string{"n"},
					Value:   false,
					Usage:   "Show how many tokens would be deleted without deleting",
				},
				formatFlag(),
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg := config.Load()
				container := app.NewContainer(cfg)
				defer func() { _ = container.Shutdown(ctx) }()

				tokenUseCase, err := container.AccessTokenUseCase()
				if err != nil {
					return err
				}

				return commands.RunCleanExpiredTokens(
					ctx,
					tokenUseCase,
					container.Logger(),
					commands.DefaultIO().Writer,
					int(cmd.Int("days")),
					cmd.Bool("dry-run"),
					cmd.String("format"),
				)
			},
		},
	}
}
