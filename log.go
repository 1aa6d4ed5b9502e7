package main

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli"
)

// setupLogging configures logrus from the global flags.
func setupLogging(context *cli.Context) error {
	switch format := context.GlobalString("log-format"); format {
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	case "text", "":
		log.SetFormatter(&log.TextFormatter{DisableTimestamp: true})
	default:
		return fmt.Errorf("unknown log format %q", format)
	}
	log.SetOutput(os.Stderr)
	if context.GlobalBool("debug") {
		log.SetLevel(log.DebugLevel)
	}
	return nil
}
