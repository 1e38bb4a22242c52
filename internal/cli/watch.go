package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/vpaa/eventcore/internal/eligibility"
	"github.com/vpaa/eventcore/internal/model"
	"github.com/vpaa/eventcore/internal/reconcile"
)

// WatchOptions holds flags for the watch command.
type WatchOptions struct {
	*RootOptions
	Event    string
	Interval time.Duration
}

// WatchLine is one refresh as printed by the watch command.
type WatchLine struct {
	Version     int64     `json:"version"`
	RefreshedAt time.Time `json:"refreshed_at,omitzero"`
	Events      int       `json:"events"`
	Confirmed   int       `json:"confirmed"`
	Pending     int       `json:"pending"`
	Stale       int       `json:"stale"`
	Error       string    `json:"error,omitempty"`

	// Set with --event.
	EventID      string `json:"event_id,omitempty"`
	Participants int    `json:"participants"`
	Attended     int    `json:"attended"`
	Awaiting     int    `json:"awaiting_certificate"`
	Certified    int    `json:"certified"`
}

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Keep a device view reconciled with the authority",
		Long: `Refresh the device view every interval until interrupted, printing one
line per refresh. Acknowledged writes that stay missing past the grace
window are reported as STALE_WRITE.

The interval defaults to $EVENTCORE_REFRESH_INTERVAL (30s). With --format
json each refresh is printed as one JSON object per line.

Examples:
  eventcore watch --api http://authority:8080 --event E1
  eventcore watch --interval 10s --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Event, "event", "", "also summarize this event on every refresh")
	cmd.Flags().DurationVar(&opts.Interval, "interval", 0, "refresh interval (default $EVENTCORE_REFRESH_INTERVAL)")

	return cmd
}

func runWatch(opts *WatchOptions, cmd *cobra.Command) error {
	if err := opts.load(cmd); err != nil {
		return err
	}
	interval := opts.Interval
	if interval <= 0 {
		interval = opts.Config.RefreshInterval
	}

	authority, release, err := opts.openAuthority(cmd)
	if err != nil {
		return err
	}
	defer release()

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var eng *reconcile.Engine
	w := cmd.OutOrStdout()
	enc := json.NewEncoder(w)
	observe := func(report reconcile.RefreshReport, err error) {
		line := WatchLine{
			Version:   report.Version,
			Events:    report.Events,
			Confirmed: report.Confirmed,
			Pending:   report.Pending,
			Stale:     len(report.Stale),
		}
		if err == nil {
			err = report.Err()
		}
		if err != nil {
			line.Error = err.Error()
		} else {
			line.RefreshedAt = eng.Committed().RefreshedAt()
		}
		if opts.Event != "" {
			summarizeEvent(eng, opts.Event, &line)
		}
		if opts.Format == "json" {
			_ = enc.Encode(line)
			return
		}
		writeWatchLine(w, line)
	}

	engineOpts := append(opts.Config.EngineOptions(opts.Logger),
		reconcile.WithServerSideDedup(true),
		reconcile.WithRefreshObserver(observe),
	)
	eng = reconcile.New(authority, engineOpts...)

	opts.Logger.Info("watching authority", "interval", interval, "grace_window", opts.Config.GraceWindow)
	err = eng.Run(ctx, interval)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		opts.Logger.Info("watch stopped")
		return nil
	}
	return err
}

func summarizeEvent(eng *reconcile.Engine, eventID string, line *WatchLine) {
	line.EventID = eventID
	ev, ok := eng.Snapshot().Event(eventID)
	if !ok {
		return
	}
	line.Participants = ev.ParticipantsCount
	for _, p := range ev.Participants {
		if p.Status != model.StatusRegistered {
			line.Attended++
		}
		if eng.IsPending(p, ev) {
			line.Awaiting++
		}
	}
	line.Certified = len(eligibility.Certified(ev.Participants))
}

func writeWatchLine(w io.Writer, line WatchLine) {
	fmt.Fprintf(w, "refresh %d: %d event(s), %d confirmed, %d pending, %d stale",
		line.Version, line.Events, line.Confirmed, line.Pending, line.Stale)
	if line.EventID != "" {
		fmt.Fprintf(w, "; %s: %d participant(s), %d attended, %d awaiting certificate, %d certified",
			line.EventID, line.Participants, line.Attended, line.Awaiting, line.Certified)
	}
	if line.Error != "" {
		fmt.Fprintf(w, "; %s", line.Error)
	}
	fmt.Fprintln(w)
}
