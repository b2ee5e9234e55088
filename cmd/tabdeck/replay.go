package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"pkt.systems/pslog"
	"pkt.systems/tabdeck"
	"pkt.systems/tabdeck/core"
	"pkt.systems/tabdeck/internal/appconfig"
	"pkt.systems/tabdeck/internal/eventbus"
	"pkt.systems/tabdeck/internal/haptics"
	"pkt.systems/tabdeck/schema"
)

// replayScript is a gesture script run against the core without a browser.
// Tabs are addressed by their order index at the time the step runs.
type replayScript struct {
	Steps []replayStep `yaml:"steps"`
}

type replayStep struct {
	Op string `yaml:"op"`

	URL      string  `yaml:"url,omitempty"`
	Activate *bool   `yaml:"activate,omitempty"`
	Index    int     `yaml:"index,omitempty"`
	Progress float64 `yaml:"progress,omitempty"`
	Offset   float64 `yaml:"offset,omitempty"`

	// Touch gestures.
	Points     [][2]float64 `yaml:"points,omitempty"`
	Velocity   [2]float64   `yaml:"velocity,omitempty"`
	DurationMS int          `yaml:"duration_ms,omitempty"`

	// Switch gestures.
	Translate [2]float64 `yaml:"translate,omitempty"`

	// Pending leaves the settle uncommitted, as if its animation was
	// preempted.
	Pending bool `yaml:"pending,omitempty"`
}

type replayReport struct {
	Steps  []replayResult         `yaml:"steps"`
	Tabs   schema.TabListSnapshot `yaml:"tabs"`
	Events []replayEvent          `yaml:"events"`
}

type replayResult struct {
	Op     string `yaml:"op"`
	Result string `yaml:"result,omitempty"`
	Error  string `yaml:"error,omitempty"`
}

type replayEvent struct {
	Type   schema.TabEventType `yaml:"type"`
	Tab    schema.TabID        `yaml:"tab"`
	URL    string              `yaml:"url,omitempty"`
	Active int                 `yaml:"active"`
}

const replayFrame = 16 * time.Millisecond

func newReplayCmd() *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:   "replay <script.yaml>",
		Short: "Run a gesture script against the tab core and print the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			script, err := readReplayScript(args[0])
			if err != nil {
				return err
			}
			serviceCfg := schema.DefaultServiceConfig()
			if cfgPath != "" {
				cfg, err := appconfig.Load(cfgPath)
				if err != nil {
					return err
				}
				if serviceCfg, err = cfg.ServiceConfig(); err != nil {
					return err
				}
			}
			report, err := runReplay(cmd.Context(), serviceCfg, script)
			if err != nil {
				return err
			}
			data, err := yaml.Marshal(report)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to config file for layout and gesture thresholds")
	return cmd
}

func readReplayScript(path string) (replayScript, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return replayScript{}, err
		}
		defer func() { _ = f.Close() }()
		r = f
	}
	return parseReplayScript(r)
}

func parseReplayScript(r io.Reader) (replayScript, error) {
	var script replayScript
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&script); err != nil {
		if errors.Is(err, io.EOF) {
			return replayScript{}, errors.New("replay script is empty")
		}
		return replayScript{}, fmt.Errorf("parse replay script: %w", err)
	}
	for i, step := range script.Steps {
		if _, ok := replayOps[step.Op]; !ok {
			return replayScript{}, fmt.Errorf("replay step %d: unknown op %q", i, step.Op)
		}
	}
	return script, nil
}

type replayer struct {
	svc core.Service
	now time.Time
}

type replayOp func(r *replayer, ctx context.Context, step replayStep) (string, error)

var replayOps = map[string]replayOp{
	"new_tab":       (*replayer).newTab,
	"close_tab":     (*replayer).closeTab,
	"activate":      (*replayer).activate,
	"show_tab_view": (*replayer).showTabView,
	"hide_tab_view": (*replayer).hideTabView,
	"navigate":      (*replayer).navigate,
	"load_progress": (*replayer).loadProgress,
	"touch":         (*replayer).touch,
	"switch":        (*replayer).switchPan,
	"scroll":        (*replayer).scroll,
}

// runReplay executes the script on a fresh service with deterministic tab ids
// and a frame-stepped clock.
func runReplay(ctx context.Context, cfg schema.ServiceConfig, script replayScript) (replayReport, error) {
	logger := pslog.Ctx(ctx)
	r := &replayer{now: time.Unix(0, 0).UTC()}
	next := 0
	server, err := tabdeck.New(tabdeck.ServerConfig{Service: cfg}, tabdeck.ServerDeps{
		ServiceDeps: core.ServiceDeps{
			Haptics: haptics.New(logger),
			Logger:  logger,
			Clock:   func() time.Time { return r.now },
			NewTabID: func() schema.TabID {
				next++
				return schema.TabID(fmt.Sprintf("tab-%d", next))
			},
		},
	})
	if err != nil {
		return replayReport{}, err
	}
	r.svc = server.Service()
	defer r.svc.Close()
	events, unsubscribe := server.Events().Subscribe()
	defer unsubscribe()

	report := replayReport{}
	for _, step := range script.Steps {
		r.now = r.now.Add(replayFrame)
		result, err := replayOps[step.Op](r, ctx, step)
		r.svc.Drain(ctx)
		entry := replayResult{Op: step.Op, Result: result}
		if err != nil {
			entry.Error = err.Error()
			logger.Debug("replay step failed", "op", step.Op, "err", err)
		}
		report.Steps = append(report.Steps, entry)
		report.Events = append(report.Events, collectEvents(events)...)
	}

	list, err := r.svc.ListTabs(ctx, schema.ListTabsRequest{})
	if err != nil {
		return replayReport{}, err
	}
	report.Tabs = list.List
	return report, nil
}

func collectEvents(ch <-chan eventbus.Event) []replayEvent {
	var out []replayEvent
	for {
		select {
		case event := <-ch:
			out = append(out, replayEvent{
				Type:   event.Type,
				Tab:    event.Tab.Tab.ID,
				URL:    event.Tab.Tab.URL,
				Active: event.Tab.ActiveIndex,
			})
		default:
			return out
		}
	}
}

func (r *replayer) tabAt(ctx context.Context, index int) (schema.TabID, error) {
	list, err := r.svc.ListTabs(ctx, schema.ListTabsRequest{})
	if err != nil {
		return "", err
	}
	if index < 0 || index >= len(list.List.Tabs) {
		return "", fmt.Errorf("%w: index %d", schema.ErrTabNotFound, index)
	}
	return list.List.Tabs[index].ID, nil
}

func (r *replayer) newTab(ctx context.Context, step replayStep) (string, error) {
	activate := true
	if step.Activate != nil {
		activate = *step.Activate
	}
	resp, err := r.svc.NewTab(ctx, schema.NewTabRequest{URL: step.URL, Activate: activate})
	if err != nil {
		return "", err
	}
	return string(resp.Tab.ID), nil
}

func (r *replayer) closeTab(ctx context.Context, step replayStep) (string, error) {
	id, err := r.tabAt(ctx, step.Index)
	if err != nil {
		return "", err
	}
	if _, err := r.svc.CloseTab(ctx, schema.CloseTabRequest{TabID: id}); err != nil {
		return "", err
	}
	return string(id), nil
}

func (r *replayer) activate(ctx context.Context, step replayStep) (string, error) {
	id, err := r.tabAt(ctx, step.Index)
	if err != nil {
		return "", err
	}
	if _, err := r.svc.ActivateTab(ctx, schema.ActivateTabRequest{TabID: id}); err != nil {
		return "", err
	}
	return string(id), nil
}

func (r *replayer) showTabView(ctx context.Context, _ replayStep) (string, error) {
	resp, err := r.svc.ShowTabView(ctx, schema.TabViewRequest{})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("visible=%t", resp.Visible), nil
}

func (r *replayer) hideTabView(ctx context.Context, _ replayStep) (string, error) {
	resp, err := r.svc.HideTabView(ctx, schema.TabViewRequest{})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("visible=%t", resp.Visible), nil
}

func (r *replayer) navigate(ctx context.Context, step replayStep) (string, error) {
	id, err := r.tabAt(ctx, step.Index)
	if err != nil {
		return "", err
	}
	r.svc.OnNavigation(id, schema.Navigation{URL: step.URL})
	return string(id), nil
}

func (r *replayer) loadProgress(ctx context.Context, step replayStep) (string, error) {
	id, err := r.tabAt(ctx, step.Index)
	if err != nil {
		return "", err
	}
	r.svc.OnLoadProgress(id, step.Progress)
	return string(id), nil
}

// touch plays a single-finger touch in the tab grid: the first point is the
// touch-down, the last the touch-up. Close animations complete immediately.
func (r *replayer) touch(_ context.Context, step replayStep) (string, error) {
	if len(step.Points) == 0 {
		return "", errors.New("touch needs at least one point")
	}
	duration := time.Duration(step.DurationMS) * time.Millisecond
	if duration <= 0 {
		duration = 100 * time.Millisecond
	}
	start := r.now
	points := make([]schema.Point, 0, len(step.Points))
	for _, p := range step.Points {
		points = append(points, schema.Point{X: p[0], Y: p[1]})
	}
	if !r.svc.TouchDown(points[0], start) {
		return "ignored", nil
	}
	moves := points[1:]
	for i, p := range moves {
		r.now = start.Add(duration * time.Duration(i+1) / time.Duration(len(moves)+1))
		r.svc.TouchMove(p, r.now)
	}
	r.now = start.Add(duration)
	res := r.svc.TouchUp(points[len(points)-1], schema.Velocity{X: step.Velocity[0], Y: step.Velocity[1]}, r.now)
	switch res.Outcome {
	case core.CloseTap, core.CloseSwipe:
		r.svc.CompleteClose(res.TabID)
	case core.CloseCancel:
		r.svc.CompleteCancel(res.TabID)
	}
	if res.TabID == "" {
		return res.Outcome.String(), nil
	}
	return fmt.Sprintf("%s %s", res.Outcome, res.TabID), nil
}

// switchPan plays a pan on the active tab's toolbar and, unless pending,
// completes its settle.
func (r *replayer) switchPan(_ context.Context, step replayStep) (string, error) {
	r.svc.BeginSwitch()
	r.svc.UpdateSwitch(step.Translate[0], step.Translate[1])
	settle := r.svc.EndSwitch(step.Velocity[0], step.Velocity[1])
	if settle == nil {
		return "none", nil
	}
	if !step.Pending && !settle.Complete() {
		return settle.Outcome.String() + " discarded", nil
	}
	return fmt.Sprintf("%s %d", settle.Outcome, settle.Intended), nil
}

// scroll sets the grid scroll offset and advances the container height
// animation by one frame.
func (r *replayer) scroll(_ context.Context, step replayStep) (string, error) {
	r.svc.SetScrollOffset(step.Offset)
	height := r.svc.StepScroll(replayFrame)
	return fmt.Sprintf("height=%.1f", height), nil
}
