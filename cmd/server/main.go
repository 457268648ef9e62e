package main // Entry point package

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func main() {
	app := cli.NewApp()
	app.Name = "raffle-checkout"
	app.Usage = "raffle entry checkout service"
	app.Action = cli.ShowAppHelp
	app.Commands = []*cli.Command{
		{
			Action:      serve,
			Name:        "serve",
			Usage:       "Start the HTTP API",
			Category:    "Api",
			Description: `Runs purchase intake, the buyer endpoints and the payment webhook.`,
		},
		{
			Action:      migrateUp,
			Name:        "migrate",
			Usage:       "Apply database migrations",
			Category:    "Database",
			Description: `Applies every pending migration embedded in the binary and exits.`,
		},
		{
			Action:      consume,
			Name:        "consume",
			Usage:       "Start the queue consumer",
			Category:    "Worker",
			Description: `Appends confirmed purchases to the event log and forwards pixel events.`,
		},
		{
			Action:    issueToken,
			Name:      "token",
			Usage:     "Print a signed access token for local testing",
			Category:  "Tools",
			ArgsUsage: "<user-id>",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "name", Usage: "display name claim"},
				&cli.StringFlag{Name: "phone", Usage: "phone claim"},
				&cli.StringFlag{Name: "role", Value: "BUYER", Usage: "role claim (BUYER or ADMIN)"},
				&cli.DurationFlag{Name: "ttl", Value: 0, Usage: "token lifetime (default 1h)"},
			},
		},
	}
	if err := app.Run(os.Args); err != nil {
		logrus.WithError(err).Fatal("command failed")
	}
}
