package commands

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"supersorting.ai/internal/client"
	"supersorting.ai/internal/grid"
	"supersorting.ai/internal/printer"
)

var (
	addr    string
	apiKey  string
	timeout time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "sssctl",
	Short: "sssctl - command line for the sorting facility operator",
	Long: `sssctl talks to a running operator over its HTTP gateway.

It reports stats and state, stages items, manages holds and blocked cells,
and removes agents. Every command needs an API key, taken from --api-key or
the SSS_API_KEY environment variable.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
	FParseErrWhitelist: cobra.FParseErrWhitelist{},
}

func Execute() error {
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
	return rootCmd.Execute()
}

func SetVersion(v string) { rootCmd.Version = v }

func init() {
	rootCmd.PersistentFlags().StringVar(&addr, "addr", envOr("SSS_ADDR", "http://127.0.0.1:8080"), "operator base URL")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", os.Getenv("SSS_API_KEY"), "gateway API key (UUID)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Second, "request timeout")
}

func envOr(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func newClient() (*client.Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, printer.Error("missing API key", "", "pass --api-key or set SSS_API_KEY")
	}
	return client.New(addr, apiKey), nil
}

func requestContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, timeout)
}

// apiError prints err under title with a hint for the common gateway codes.
func apiError(title string, err error) error {
	var hints []string
	switch {
	case client.IsCode(err, "E_UNAUTHORIZED"):
		hints = append(hints, "check --api-key against the operator's auth.api_keys")
	case client.IsCode(err, "E_NOT_FOUND"):
		hints = append(hints, "list what exists with: sssctl agents | items | holds")
	}
	return printer.Error(title, err.Error(), hints...)
}

// parseCell accepts "x,y".
func parseCell(s string) (grid.Vec2, error) {
	x, y, ok := strings.Cut(strings.TrimSpace(s), ",")
	if !ok {
		return grid.Vec2{}, fmt.Errorf("cell %q: want x,y", s)
	}
	xi, err := strconv.Atoi(strings.TrimSpace(x))
	if err != nil {
		return grid.Vec2{}, fmt.Errorf("cell %q: %w", s, err)
	}
	yi, err := strconv.Atoi(strings.TrimSpace(y))
	if err != nil {
		return grid.Vec2{}, fmt.Errorf("cell %q: %w", s, err)
	}
	if xi < 0 || yi < 0 {
		return grid.Vec2{}, fmt.Errorf("cell %q: negative coordinate", s)
	}
	return grid.Vec2{X: xi, Y: yi}, nil
}

func parseCells(args []string) ([]grid.Vec2, error) {
	out := make([]grid.Vec2, 0, len(args))
	for _, a := range args {
		p, err := parseCell(a)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func cellString(p grid.Vec2) string { return fmt.Sprintf("%d,%d", p.X, p.Y) }

func cellsString(ps []grid.Vec2) string {
	parts := make([]string, len(ps))
	for i, p := range ps {
		parts[i] = cellString(p)
	}
	return strings.Join(parts, " ")
}
