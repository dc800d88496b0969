package main

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "tradeproof",
		Usage: "Evidence capture, timestamping and protection reports for tradespeople",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "env-prefix",
				Aliases: []string{"p"},
				Usage:   "Environment variable prefix",
			},
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "Dotenv file loaded before the environment is read",
				Value: ".env",
			},
		},
		Commands: []*cli.Command{
			serveCommand,
			migrateCommand,
			anchorCommand,
			quotaCommand,
			cleanupCommand,
			seedCommand,
			keysCommand,
		},
	}

	if err := app.Run(os.Args); err != nil {
		logrus.WithError(err).Fatal("application failed")
	}
}
