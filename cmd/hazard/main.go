// Command hazard runs the concurrency hazard demonstrations, one per subcommand.
package main

import (
	"fmt"
	"io"
	"os"
	"sync"
	"syscall"

	"github.com/logrusorgru/aurora"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"github.com/sharnoff/hazard"
)

// consoleReporter prints reports to stdout, one line each, with the source highlighted.
type consoleReporter struct {
	mu  sync.Mutex
	out io.Writer
	au  aurora.Aurora
}

func (r *consoleReporter) Report(source, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.out, "%s %s\n", r.au.Cyan("["+source+"]"), message)
}

func main() {
	app := cli.NewApp()
	app.Name = "hazard"
	app.Usage = "run concurrency hazard demonstrations"
	app.Flags = []cli.Flag{
		cli.BoolFlag{Name: "debug", Usage: "log thread lifecycle at debug level"},
		cli.StringFlag{Name: "config", Usage: "YAML file overriding demo timings"},
		cli.BoolFlag{Name: "no-color", Usage: "disable colored output"},
	}
	app.Before = func(c *cli.Context) error {
		log.SetFormatter(&log.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "15:04:05",
			DisableColors:   c.GlobalBool("no-color"),
		})
		log.SetOutput(os.Stderr)
		if c.GlobalBool("debug") {
			log.SetLevel(log.DebugLevel)
		}
		return nil
	}

	for _, demo := range hazard.Demos {
		app.Commands = append(app.Commands, command(demo))
	}

	if err := app.Run(os.Args); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}

func command(demo hazard.Demo) cli.Command {
	return cli.Command{
		Name:  demo.Name,
		Usage: demo.Usage,
		Action: func(c *cli.Context) error {
			if c.NArg() != 0 {
				return cli.NewExitError(fmt.Sprintf("%s takes no arguments", demo.Name), 2)
			}

			cfg, err := hazard.LoadConfig(c.GlobalString("config"))
			if err != nil {
				return err
			}

			rep := &consoleReporter{out: os.Stdout, au: aurora.NewAurora(!c.GlobalBool("no-color"))}
			proc := hazard.NewProcess(hazard.ProcessConfig{
				Name:    "main",
				Grace:   cfg.Grace,
				Signals: []os.Signal{syscall.SIGINT, syscall.SIGTERM},
				Logger:  log.StandardLogger(),
			})

			return proc.Run(func(p *hazard.Process) error {
				return demo.Run(p, cfg, rep)
			})
		},
	}
}
