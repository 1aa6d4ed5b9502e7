package main

import (
	"context"
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"vnetns/config"
	"vnetns/network"
	"vnetns/privilege"
)

// gc command
var gcCommand = cli.Command{
	Name:  "gc",
	Usage: "remove locks of dead processes and namespaces without locks",
	Action: func(c *cli.Context) error {
		summary, err := env.reconciler().Run(context.Background())
		if summary != nil {
			logSummary(summary)
		}
		env.fixOwnership()
		return err
	},
}

// alloc command
var allocCommand = cli.Command{
	Name:  "alloc",
	Usage: "print the first free subnet without reserving it",
	Action: func(c *cli.Context) error {
		block, err := network.AllocateSubnet(context.Background(), env.addrs)
		if err != nil {
			return err
		}
		fmt.Println(block.Net())
		return nil
	},
}

// ps command
var listCommand = cli.Command{
	Name:  "ps",
	Usage: "list namespace locks and whether their holders are alive",
	Action: func(c *cli.Context) error {
		return ListLocks(os.Stdout)
	},
}

// create command
var createCommand = cli.Command{
	Name:      "create",
	Usage:     "create a network namespace held by a process",
	ArgsUsage: "[NAME]",
	Flags: []cli.Flag{
		cli.IntFlag{
			Name:  "pid",
			Usage: "process holding the namespace (required)",
		},
	},
	Action: func(c *cli.Context) error {
		pid := c.Int("pid")
		if pid <= 0 {
			return fmt.Errorf("missing --pid of the holding process")
		}
		name := namespaceName(c.Args().First())
		s, err := setupNamespace(context.Background(), name, pid, nil)
		if err != nil {
			return err
		}
		env.fixOwnership()
		info := s.lock.Info()
		fmt.Printf("%s\t%s\n", name, info.Subnet)
		return nil
	},
}

// exec command
var execCommand = cli.Command{
	Name:      "exec",
	Usage:     "run a command inside a network namespace",
	ArgsUsage: "[--name NAME] -- COMMAND [ARG...]",
	Flags: []cli.Flag{
		cli.StringFlag{
			Name:  "name",
			Usage: "namespace to create or join (default: random name)",
		},
	},
	Action: func(c *cli.Context) error {
		if len(c.Args()) < 1 {
			return fmt.Errorf("missing command")
		}
		return ExecInNamespace(namespaceName(c.String("name")), c.Args())
	},
}

// rm command
var removeCommand = cli.Command{
	Name:      "rm",
	Usage:     "delete a network namespace and all its locks",
	ArgsUsage: "NAME",
	Action: func(c *cli.Context) error {
		if len(c.Args()) < 1 {
			return fmt.Errorf("missing namespace name")
		}
		ctx := context.Background()
		name := c.Args().First()
		exists, err := network.Exists(ctx, env.namespaces, name)
		if err != nil {
			return err
		}
		if exists {
			if err := env.namespaces.Delete(ctx, name); err != nil {
				return err
			}
		} else {
			log.WithField("namespace", name).Info("no such network namespace")
		}
		return env.registry.Remove(name)
	},
}

// chown command
var chownCommand = cli.Command{
	Name:  "chown",
	Usage: "hand the vnetns configuration directory back to the invoking user",
	Action: func(c *cli.Context) error {
		return privilege.FixOwnership(config.AppDir(env.identity), env.identity)
	},
}
