package main

import (
	"context"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v3"

	"kanflow/board"
	"kanflow/client"
	"kanflow/tui"
)

type flags struct {
	API      string
	Token    string
	LogLevel string
	LogFile  string
}

func main() {
	f := &flags{}
	var logFile *os.File

	app := &cli.Command{
		Name:  "kanflow-tui",
		Usage: "Drag tasks across the KanFlow board from the terminal",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "api",
				Usage:       "base URL of the KanFlow API",
				Sources:     cli.EnvVars("KANFLOW_API"),
				Value:       "http://localhost:8080",
				Destination: &f.API,
			},
			&cli.StringFlag{
				Name:        "token",
				Usage:       "bearer token sent with every request",
				Sources:     cli.EnvVars("KANFLOW_TOKEN"),
				Destination: &f.Token,
			},
			&cli.StringFlag{
				Name:        "log-level",
				Usage:       "log level (debug, info, warn, error)",
				Sources:     cli.EnvVars("KANFLOW_LOG_LEVEL"),
				Value:       "info",
				Destination: &f.LogLevel,
			},
			&cli.StringFlag{
				Name:        "log-file",
				Usage:       "path to log file",
				Sources:     cli.EnvVars("KANFLOW_LOG_FILE"),
				Value:       "kanflow-tui.log",
				Destination: &f.LogFile,
			},
		},
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			// The terminal belongs to the board, so logs always go to a file.
			level, err := log.ParseLevel(f.LogLevel)
			if err != nil {
				return ctx, fmt.Errorf("parse log level: %w", err)
			}
			logFile, err = os.OpenFile(f.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err != nil {
				return ctx, fmt.Errorf("open log file: %w", err)
			}
			log.SetOutput(logFile)
			log.SetLevel(level)
			log.SetFormatter(&log.TextFormatter{DisableColors: true, FullTimestamp: true})
			return ctx, nil
		},
		After: func(ctx context.Context, c *cli.Command) error {
			if logFile != nil {
				return logFile.Close()
			}
			return nil
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			return run(f)
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(f *flags) error {
	api, err := client.New(f.API, f.Token, nil)
	if err != nil {
		return err
	}

	bridge := &tui.Bridge{}
	store := board.NewStore(api)
	store.OnChange(bridge.StoreChanged)
	committer := board.NewCommitter(store, api, bridge, log.StandardLogger())
	ctrl := board.NewController(store, committer)

	p := tea.NewProgram(tui.New(store, ctrl), tea.WithAltScreen())
	bridge.Attach(p)

	log.WithField("api", f.API).Info("tui.start")
	_, err = p.Run()
	committer.Wait()
	committer.Close()
	if err != nil {
		return fmt.Errorf("run board: %w", err)
	}
	return nil
}
