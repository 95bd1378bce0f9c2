package main

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/allisson/logvault/cmd/app/commands"
	"github.com/allisson/logvault/internal/app"
	"github.com/allisson/logvault/internal/client"
)

func getLogsCommands() []*cli.Command {
	return []*cli.Command{
		{
			Name:  "append-entry",
			Usage: "Encrypt and append entries to a log, one JSON object per stdin line unless --data is set",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:     "log",
					Aliases:  []string{"l"},
					Required: true,
					Usage:    "Log name",
				},
				&cli.StringFlag{
					Name:    "data",
					Aliases: []string{"d"},
					Usage:   "Entry as a JSON object",
				},
				&cli.StringFlag{
					Name:  "timestamp",
					Usage: "Entry timestamp in RFC3339 (defaults to now)",
				},
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return withClient(ctx, func(container *app.Container, sdk *client.Client) error {
					return commands.RunAppendEntry(
						ctx,
						sdk,
						container.Logger(),
						commands.DefaultIO(),
						cmd.String("log"),
						cmd.String("data"),
						cmd.String("timestamp"),
					)
				})
			},
		},
		{
			Name:  "search-logs",
			Usage: "Search the tenant's logs and print the decrypted matches",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:    "log",
					Aliases: []string{"l"},
					Usage:   "Restrict the search to one log",
				},
				&cli.StringFlag{
					Name:    "query",
					Aliases: []string{"q"},
					Usage:   "Words every match must contain",
				},
				&cli.StringSliceFlag{
					Name:  "filter",
					Usage: "field=value every match must carry (repeatable)",
				},
				&cli.StringFlag{
					Name:  "from",
					Usage: "Earliest entry timestamp in RFC3339",
				},
				&cli.StringFlag{
					Name:  "to",
					Usage: "Latest entry timestamp in RFC3339",
				},
				&cli.IntFlag{
					Name:  "offset",
					Value: 0,
					Usage: "Matches to skip",
				},
				&cli.IntFlag{
					Name:  "limit",
					Value: 50,
					Usage: "Maximum matches to print",
				},
				formatFlag(),
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return withClient(ctx, func(container *app.Container, sdk *client.Client) error {
					return commands.RunSearchLogs(ctx, sdk, container.Logger(), commands.DefaultIO().Writer,
						commands.SearchOptions{
							LogName: cmd.String("log"),
							Query:   cmd.String("query"),
							Filters: cmd.StringSlice("filter"),
							From:    cmd.String("from"),
							To:      cmd.String("to"),
							Offset:  int(cmd.Int("offset")),
							Limit:   int(cmd.Int("limit")),
							Format:  cmd.String("format"),
						})
				})
			},
		},
		{
			Name:  "list-logs",
			Usage: "List the tenant's logs",
			Flags: []cli.Flag{formatFlag()},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return withClient(ctx, func(container *app.Container, sdk *client.Client) error {
					return commands.RunListLogs(ctx, sdk, commands.DefaultIO().Writer, cmd.String("format"))
				})
			},
		},
		{
			Name:  "apply-retention",
			Usage: "Apply the retention policies of a YAML file",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:     "file",
					Aliases:  []string{"f"},
					Required: true,
					Usage:    "Path to the retention YAML file",
				},
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return withClient(ctx, func(container *app.Container, sdk *client.Client) error {
					return commands.RunApplyRetention(
						ctx,
						sdk,
						container.Logger(),
						commands.DefaultIO().Writer,
						cmd.String("file"),
					)
				})
			},
		},
	}
}
