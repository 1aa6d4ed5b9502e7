package main

import (
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli"
)

const usage = `vnetns coordinates the network namespaces of concurrent per-application VPN sessions.`

func newApp() *cli.App {
	app := cli.NewApp()
	app.Name = "vnetns"
	app.Usage = usage

	app.Flags = []cli.Flag{
		cli.BoolFlag{
			Name:  "debug",
			Usage: "enable debug logging",
		},
		cli.StringFlag{
			Name:  "log-format",
			Value: "text",
			Usage: "log format: text or json",
		},
		cli.StringFlag{
			Name:  "config",
			Usage: "configuration file (default: ~/.config/vnetns/config.yaml)",
		},
		cli.StringFlag{
			Name:  "backend",
			Usage: "inspect interfaces and namespaces via netlink or iproute2",
		},
		cli.StringFlag{
			Name:  "registry",
			Usage: "lock registry directory",
		},
	}

	app.Commands = []cli.Command{
		gcCommand,
		allocCommand,
		listCommand,
		createCommand,
		execCommand,
		removeCommand,
		chownCommand,
	}

	// Logging comes first so that the privilege bootstrap can already log.
	app.Before = func(context *cli.Context) error {
		if err := setupLogging(context); err != nil {
			return err
		}
		return setupEnvironment(context)
	}
	return app
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
