package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/luke-wagner/PlantCare-Monitor/config"
	"github.com/luke-wagner/PlantCare-Monitor/internal/version"
)

const defaultTimeout = 2 * time.Minute

func newApp(out io.Writer) *cli.App {
	app := cli.NewApp()
	app.Name = "plantctl"
	app.Version = fmt.Sprintf("%s (%s)", version.Version, version.Commit)
	app.Usage = "one-shot greg.app scraping, history export and care questions for the plantcare hub"
	app.Writer = out
	app.ErrWriter = os.Stderr
	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "config file (json or yaml); defaults to PLANTCARE_CONFIG or the hub's path",
			EnvVars: []string{"PLANTCARE_CONFIG"},
		},
		&cli.DurationFlag{
			Name:  "timeout",
			Value: defaultTimeout,
			Usage: "overall deadline for network commands",
		},
	}
	app.Commands = []*cli.Command{
		scrapeCommand,
		exportCommand,
		askCommand,
		hashPasswordCommand,
	}
	return app
}

// loadConfig reads --config, falling back to the hub's default location
func loadConfig(c *cli.Context) (*config.Config, error) {
	if path := c.String("config"); path != "" {
		return config.LoadFrom(path)
	}
	return config.LoadConfig()
}

// withTimeout bounds c.Context by --timeout
func withTimeout(c *cli.Context) (context.Context, context.CancelFunc) {
	if d := c.Duration("timeout"); d > 0 {
		return context.WithTimeout(c.Context, d)
	}
	return context.WithCancel(c.Context)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newApp(os.Stdout).RunContext(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}
