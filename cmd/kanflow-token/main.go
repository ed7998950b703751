package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/urfave/cli/v3"

	"kanflow/api"
)

func main() {
	var (
		secret   string
		audience string
		domain   string
		prefix   string
		output   string
		count    int
		ttl      time.Duration
	)

	app := &cli.Command{
		Name:      "kanflow-token",
		Usage:     "Mint HS256 tokens for LOCAL_AUTH_MODE=hs256 or AUTH0_TEST_MODE",
		ArgsUsage: "[user-id]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "secret",
				Usage:       "shared signing secret",
				Sources:     cli.EnvVars("LOCAL_AUTH_SHARED_SECRET", "TEST_JWT_SECRET"),
				Destination: &secret,
			},
			&cli.StringFlag{
				Name:        "audience",
				Sources:     cli.EnvVars("AUTH0_AUDIENCE"),
				Destination: &audience,
			},
			&cli.StringFlag{
				Name:        "domain",
				Usage:       "issuer domain",
				Sources:     cli.EnvVars("AUTH0_DOMAIN"),
				Destination: &domain,
			},
			&cli.IntFlag{
				Name:        "count",
				Usage:       "number of tokens to generate",
				Value:       1,
				Destination: &count,
			},
			&cli.StringFlag{
				Name:        "prefix",
				Usage:       "prefix for generated user IDs when count > 1",
				Value:       "local-user",
				Destination: &prefix,
			},
			&cli.StringFlag{
				Name:        "output",
				Usage:       "file to write generated tokens as a JSON array",
				Destination: &output,
			},
			&cli.DurationFlag{
				Name:        "ttl",
				Value:       time.Hour,
				Destination: &ttl,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			if count < 1 {
				return errors.New("count must be at least 1")
			}
			if c.Args().Len() > 0 && count > 1 {
				return errors.New("explicit user ID cannot be provided when generating multiple tokens")
			}
			issuer := ""
			if domain != "" {
				issuer = "https://" + domain + "/"
			}

			tokens := make([]string, count)
			for i := range tokens {
				userID := prefix
				switch {
				case c.Args().Len() > 0:
					userID = c.Args().First()
				case count > 1:
					userID = fmt.Sprintf("%s-%d", prefix, i+1)
				}
				tok, err := api.SignDevToken([]byte(secret), userID, audience, issuer, ttl)
				if err != nil {
					return err
				}
				tokens[i] = tok
			}

			if output != "" {
				if err := writeTokens(output, tokens); err != nil {
					return fmt.Errorf("write tokens: %w", err)
				}
			}
			fmt.Print(tokens[0])
			return nil
		},
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func writeTokens(path string, tokens []string) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	data, err := json.Marshal(tokens)
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o600)
}
