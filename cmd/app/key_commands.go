package main

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/allisson/logvault/cmd/app/commands"
	"github.com/allisson/logvault/internal/app"
	"github.com/allisson/logvault/internal/client"
	"github.com/allisson/logvault/internal/config"
	cryptoService "github.com/allisson/logvault/internal/crypto/service"
)

// withClient runs fn with a client initialized from the environment.
func withClient(ctx context.Context, fn func(container *app.Container, sdk *client.Client) error) error {
	cfg := config.Load()
	container := app.NewContainer(cfg)
	defer func() { _ = container.Shutdown(ctx) }()

	sdk, err := container.Client(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = sdk.Close() }()

	return fn(container, sdk)
}

func getKeyCommands() []*cli.Command {
	return []*cli.Command{
		{
			Name:  "create-master-secret",
			Usage: "Generate a tenant master secret, sealed with a KMS key when one is given",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:  "kms-key-uri",
					Value: "",
					Usage: "KMS key URI (e.g., base64key://, gcpkms://projects/.../cryptoKeys/..., hashivault://...)",
				},
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg := config.Load()
				container := app.NewContainer(cfg)
				defer func() { _ = container.Shutdown(ctx) }()

				return commands.RunCreateMasterSecret(
					ctx,
					container.KMSService(),
					container.Logger(),
					commands.DefaultIO().Writer,
					cmd.String("kms-key-uri"),
				)
			},
		},
		{
			Name:  "split-master-secret",
			Usage: "Split the configured master secret into Shamir recovery shares",
			Flags: []cli.Flag{
				&cli.IntFlag{
					Name:    "shares",
					Aliases: []string{"n"},
					Value:   5,
					Usage:   "Number of shares to produce",
				},
				&cli.IntFlag{
					Name:    "threshold",
					Aliases: []string{"k"},
					Value:   3,
					Usage:   "Number of shares required to rebuild the secret",
				},
				formatFlag(),
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg := config.Load()
				container := app.NewContainer(cfg)
				defer func() { _ = container.Shutdown(ctx) }()

				sdk, err := container.OfflineClient(ctx)
				if err != nil {
					return err
				}
				defer func() { _ = sdk.Close() }()

				return commands.RunSplitMasterSecret(
					sdk,
					container.Logger(),
					commands.DefaultIO().Writer,
					int(cmd.Int("shares")),
					int(cmd.Int("threshold")),
					cmd.String("format"),
				)
			},
		},
		{
			Name:  "list-kek-versions",
			Usage: "List the tenant's KEK versions",
			Flags: []cli.Flag{formatFlag()},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return withClient(ctx, func(container *app.Container, sdk *client.Client) error {
					return commands.RunListKEKVersions(ctx, sdk, commands.DefaultIO().Writer, cmd.String("format"))
				})
			},
		},
		{
			Name:  "create-kek-version",
			Usage: "Create a new active KEK version without moving existing logs",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:    "reason",
					Aliases: []string{"r"},
					Usage:   "Why the version is created",
				},
				formatFlag(),
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return withClient(ctx, func(container *app.Container, sdk *client.Client) error {
					return commands.RunCreateKEKVersion(
						ctx,
						sdk,
						container.Logger(),
						commands.DefaultIO().Writer,
						cmd.String("reason"),
						cmd.String("format"),
					)
				})
			},
		},
		{
			Name:  "provision-kek",
			Usage: "Grant a user access to a KEK version",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:     "user",
					Aliases:  []string{"u"},
					Required: true,
					Usage:    "User ID to grant",
				},
				&cli.StringFlag{
					Name:  "version",
					Usage: "KEK version ID (defaults to the newest version)",
				},
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return withClient(ctx, func(container *app.Container, sdk *client.Client) error {
					return commands.RunProvisionKEK(
						ctx,
						sdk,
						container.Logger(),
						commands.DefaultIO().Writer,
						cmd.String("user"),
						cmd.String("version"),
					)
				})
			},
		},
		{
			Name:  "rotate-kek",
			Usage: "Rotate the tenant KEK and move every log to the new version",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:    "reason",
					Aliases: []string{"r"},
					Usage:   "Why the KEK is rotated",
				},
				&cli.StringSliceFlag{
					Name:  "remove-user",
					Usage: "User to drop from the new version; forces log keys to be rekeyed (repeatable)",
				},
				formatFlag(),
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return withClient(ctx, func(container *app.Container, sdk *client.Client) error {
					return commands.RunRotateKEK(
						ctx,
						sdk,
						container.Logger(),
						commands.DefaultIO().Writer,
						cmd.String("reason"),
						cmd.StringSlice("remove-user"),
						cmd.String("format"),
					)
				})
			},
		},
		{
			Name:  "resume-rotation",
			Usage: "Retry the pending and failed logs of the latest rotation job",
			Flags: []cli.Flag{formatFlag()},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return withClient(ctx, func(container *app.Container, sdk *client.Client) error {
					return commands.RunResumeRotation(
						ctx,
						sdk,
						container.Logger(),
						commands.DefaultIO().Writer,
						cmd.String("format"),
					)
				})
			},
		},
		{
			Name:  "submit-share",
			Usage: "Submit a recovery share to an open recovery session",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:     "session",
					Aliases:  []string{"s"},
					Required: true,
					Usage:    "Recovery session ID",
				},
				&cli.StringFlag{
					Name:     "share",
					Required: true,
					Usage:    "Encoded share as printed by split-master-secret",
				},
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg := config.Load()
				container := app.NewContainer(cfg)
				defer func() { _ = container.Shutdown(ctx) }()

				kekService, err := container.KekService()
				if err != nil {
					return err
				}

				return commands.RunSubmitShare(
					ctx,
					kekService,
					cryptoService.NewSealer(),
					container.Logger(),
					commands.DefaultIO().Writer,
					cfg.TenantID,
					cfg.UserID,
					cmd.String("session"),
					cmd.String("share"),
				)
			},
		},
	}
}
