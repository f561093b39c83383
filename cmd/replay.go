package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/maxscroll/internal/app"
	"github.com/JakeFAU/maxscroll/internal/clock"
	"github.com/JakeFAU/maxscroll/internal/config"
	"github.com/JakeFAU/maxscroll/internal/hit"
	"github.com/JakeFAU/maxscroll/internal/hit/sinks"
	"github.com/JakeFAU/maxscroll/internal/logging"
	"github.com/JakeFAU/maxscroll/internal/maxscroll"
)

// replayHold keeps trackers from measuring on their own; the replay loop
// flushes them when trace time passes the debounce deadline.
const replayHold = 24 * time.Hour

// replayBuffer sizes the hit buffer so a fast replay does not outrun the sink.
const replayBuffer = 1 << 16

// traceLine is one recorded browser event.
type traceLine struct {
	ClientID string `json:"client_id"`
	app.BrowserEvent
}

// newReplayCmd creates the 'replay' subcommand, which feeds a recorded
// trace through the tracker and prints the resulting hits as JSON lines.
func newReplayCmd() *cobra.Command {
	var (
		tracePath     string
		defaultClient string
		useStore      bool
	)
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replays a recorded event trace and prints the emitted hits",
		Long: `Reads newline-delimited JSON browser events (navigate and scroll) and
drives them through the tracker on a simulated clock taken from each event's
"ts" field. Every hit the tracker would send is written to stdout.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := resolveConfig(cmd.Context())
			if err != nil {
				return err
			}
			in := cmd.InOrStdin()
			if tracePath != "" && tracePath != "-" {
				f, err := os.Open(tracePath)
				if err != nil {
					return fmt.Errorf("open trace: %w", err)
				}
				defer f.Close()
				in = f
			}
			if !useStore {
				cfg.Store.Driver = config.StoreMemory
			}
			return runReplay(cmd.Context(), cfg, in, cmd.OutOrStdout(), defaultClient)
		},
	}
	cmd.Flags().StringVar(&tracePath, "trace", "-", "trace file of JSON lines, - for stdin")
	cmd.Flags().StringVar(&defaultClient, "client", "replay", "client id for lines that carry none")
	cmd.Flags().BoolVar(&useStore, "use-store", false, "persist state to the configured store instead of memory")
	return cmd
}

func runReplay(ctx context.Context, cfg config.Config, in io.Reader, out io.Writer, defaultClient string) error {
	cfg.PubSub.Enabled = false
	cfg.Hub.LogSink = false
	cfg.Hub.PrometheusSink = false
	if cfg.Hub.BufferSize < replayBuffer {
		cfg.Hub.BufferSize = replayBuffer
	}

	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("logger init failed: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	wait := cfg.Tracker.Options().DebounceWait
	if wait <= 0 {
		wait = maxscroll.DefaultDebounceWait
	}

	clk := clock.NewManual(time.Unix(0, 0).UTC())
	a, err := app.New(ctx, cfg, logger, app.Options{
		Clock:      clk,
		ExtraSinks: []hit.Sink{sinks.NewJSONLinesSink(out)},
		TrackerOverrides: func(o *maxscroll.Options) {
			o.DebounceWait = replayHold
		},
	})
	if err != nil {
		return fmt.Errorf("app init failed: %w", err)
	}

	r := &replayer{registry: a.Registry(), clock: clk, wait: wait, pending: map[string]time.Time{}}
	runErr := r.run(ctx, in, defaultClient)
	r.flushBefore(time.Time{})

	closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.Close(closeCtx); err != nil {
		logger.Warn("replay shutdown incomplete", zap.Error(err))
	}
	return runErr
}

type replayer struct {
	registry *app.Registry
	clock    *clock.Manual
	wait     time.Duration
	// pending maps a client to the trace time of its last unmeasured scroll.
	pending map[string]time.Time
}

func (r *replayer) run(ctx context.Context, in io.Reader, defaultClient string) error {
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	n := 0
	for sc.Scan() {
		n++
		if err := ctx.Err(); err != nil {
			return err
		}
		raw := sc.Bytes()
		if len(raw) == 0 {
			continue
		}
		var line traceLine
		if err := json.Unmarshal(raw, &line); err != nil {
			return fmt.Errorf("trace line %d: %w", n, err)
		}
		if line.ClientID == "" {
			line.ClientID = defaultClient
		}
		ts := line.Timestamp
		if ts.IsZero() {
			ts = r.clock.Now()
		}
		r.flushBefore(ts)
		r.clock.Set(ts)
		if err := r.registry.Apply(ctx, line.ClientID, []app.BrowserEvent{line.BrowserEvent}); err != nil {
			return fmt.Errorf("trace line %d: %w", n, err)
		}
		if line.Type == app.EventScroll {
			r.pending[line.ClientID] = ts
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read trace: %w", err)
	}
	return nil
}

// flushBefore measures every client whose debounce deadline falls before
// now, in deadline order. A zero now flushes everything.
func (r *replayer) flushBefore(now time.Time) {
	type due struct {
		id string
		at time.Time
	}
	var ready []due
	for id, last := range r.pending {
		at := last.Add(r.wait)
		if now.IsZero() || !at.After(now) {
			ready = append(ready, due{id: id, at: at})
		}
	}
	sort.Slice(ready, func(i, j int) bool {
		if ready[i].at.Equal(ready[j].at) {
			return ready[i].id < ready[j].id
		}
		return ready[i].at.Before(ready[j].at)
	})
	for _, d := range ready {
		r.clock.Set(d.at)
		r.registry.Flush(d.id)
		delete(r.pending, d.id)
	}
}
