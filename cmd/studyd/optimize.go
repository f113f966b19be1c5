package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// demoSpace is used when optimize runs without --search-space.
const demoSpace = `
x: {name: x, type: float, low: -10, high: 10}
y: {name: y, type: float, low: -10, high: 10}
`

var (
	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6BCB77")).
			Bold(true)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888"))
)

type optimizeOptions struct {
	addr      string
	study     string
	trials    int
	workers   int
	token     string
	spaceYAML string
}

type optimizeResult struct {
	trials     int
	bestID     int64
	bestValue  float64
	bestParams map[string]any
}

func optimizeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "optimize",
		Short: "Minimize (x-2)^2 + (y-3)^2 against a running server",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := optimizeOptions{}
			opts.addr, _ = cmd.Flags().GetString("addr")
			opts.study, _ = cmd.Flags().GetString("study")
			opts.trials, _ = cmd.Flags().GetInt("trials")
			opts.workers, _ = cmd.Flags().GetInt("workers")
			opts.token, _ = cmd.Flags().GetString("token")
			opts.spaceYAML = demoSpace

			if path, _ := cmd.Flags().GetString("search-space"); path != "" {
				data, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("read search space: %w", err)
				}
				opts.spaceYAML = string(data)
			}

			res, err := runOptimize(cmd.Context(), opts)
			if err != nil {
				return err
			}
			printResult(cmd.OutOrStdout(), opts.study, res)
			return nil
		},
	}
	cmd.Flags().String("addr", "http://localhost:8000", "studyd HTTP address")
	cmd.Flags().String("study", "quadratic", "study name")
	cmd.Flags().Int("trials", 50, "number of trials to run")
	cmd.Flags().Int("workers", 4, "concurrent workers")
	cmd.Flags().String("token", os.Getenv("STUDYD_TOKEN"), "bearer token (see 'studyd token')")
	cmd.Flags().String("search-space", "", "search space YAML file (default: x,y in [-10, 10])")
	return cmd
}

// quadratic is the demo objective; its minimum 0 is at x=2, y=3.
func quadratic(params map[string]any) (float64, error) {
	x, ok := params["x"].(float64)
	if !ok {
		return 0, fmt.Errorf("param x missing or not a float")
	}
	y, ok := params["y"].(float64)
	if !ok {
		return 0, fmt.Errorf("param y missing or not a float")
	}
	return (x-2)*(x-2) + (y-3)*(y-3), nil
}

func runOptimize(ctx context.Context, opts optimizeOptions) (optimizeResult, error) {
	if opts.trials <= 0 {
		return optimizeResult{}, fmt.Errorf("trials must be positive")
	}
	workers := opts.workers
	if workers <= 0 {
		workers = 1
	}
	if workers > opts.trials {
		workers = opts.trials
	}

	client := newAPIClient(opts.addr, opts.token)
	var (
		remaining atomic.Int64
		mu        sync.Mutex
		last      tellReply
		done      int
	)
	remaining.Store(int64(opts.trials))

	g, gctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		g.Go(func() error {
			for remaining.Add(-1) >= 0 {
				trial, err := client.ask(gctx, opts.study, opts.spaceYAML, "minimize")
				if err != nil {
					return err
				}
				value, err := quadratic(trial.Params)
				if err != nil {
					_ = client.fail(gctx, opts.study, trial.TrialID)
					return fmt.Errorf("trial %d: %w", trial.TrialID, err)
				}
				reply, err := client.tell(gctx, opts.study, trial.TrialID, value)
				if err != nil {
					return err
				}

				mu.Lock()
				done++
				if reply.BestTrialID != nil && (last.BestValue == nil || *reply.BestValue <= *last.BestValue) {
					last = reply
				}
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return optimizeResult{}, err
	}
	if last.BestTrialID == nil {
		return optimizeResult{}, fmt.Errorf("no completed trials")
	}
	return optimizeResult{
		trials:     done,
		bestID:     *last.BestTrialID,
		bestValue:  *last.BestValue,
		bestParams: last.BestParams,
	}, nil
}

func printResult(w io.Writer, study string, res optimizeResult) {
	names := make([]string, 0, len(res.bestParams))
	for n := range res.bestParams {
		names = append(names, n)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString(titleStyle.Render("Best trial") + "\n")
	fmt.Fprintf(&b, "%s %s\n", labelStyle.Render("study:  "), study)
	fmt.Fprintf(&b, "%s %d\n", labelStyle.Render("trials: "), res.trials)
	fmt.Fprintf(&b, "%s %d\n", labelStyle.Render("number: "), res.bestID)
	fmt.Fprintf(&b, "%s %.6g", labelStyle.Render("value:  "), res.bestValue)
	for _, n := range names {
		fmt.Fprintf(&b, "\n%s %v", labelStyle.Render(fmt.Sprintf("%-8s", n+":")), res.bestParams[n])
	}
	fmt.Fprintln(w, boxStyle.Render(b.String()))
}
