package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/cjeanneret/babycam/internal/analysis"
	"github.com/cjeanneret/babycam/internal/eventlog"
	"github.com/cjeanneret/babycam/internal/logic/wakewindow"
)

func runLog(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("log", flag.ContinueOnError)
	cfgPath := fs.String("config", defaultConfigPath, "path to config file")
	typ := fs.String("type", "", `event type, e.g. "distress", "sleep", "tummy_time"`)
	data := fs.String("data", "{}", `event details as a JSON object, e.g. '{"duration_min": 10}'`)
	env := fs.String("env", "{}", `environment as a JSON object, e.g. '{"temp": 22, "noise": "loud"}'`)
	seed := fs.Bool("seed", false, "log three demo events instead")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if !*seed && *typ == "" {
		return errors.New("-type is required (or -seed)")
	}

	dataJSON, err := parseJSONObject("data", *data)
	if err != nil {
		return err
	}
	envJSON, err := parseJSONObject("env", *env)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		return err
	}
	store, err := eventlog.Open(cfg.EventLog)
	if err != nil {
		return err
	}
	defer store.Close()
	logger := eventlog.NewLogger(store)

	ctx := context.Background()
	if *seed {
		fmt.Fprintln(out, "Populating with test data for demonstration...")
		if err := eventlog.SeedDemo(ctx, logger); err != nil {
			return err
		}
		fmt.Fprintf(out, "Logged 3 demo events to %s\n", cfg.EventLog.Path)
		return nil
	}

	e, err := logger.Log(ctx, *typ, dataJSON, envJSON)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Logged event: %s (%s)\n", e.Type, e.EventID)
	return nil
}

// parseJSONObject accepts a JSON object (or an empty string for {}).
func parseJSONObject(name, s string) (json.RawMessage, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return json.RawMessage("{}"), nil
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(s), &obj); err != nil || obj == nil {
		return nil, fmt.Errorf("-%s must be a JSON object, got %q", name, s)
	}
	return json.RawMessage(s), nil
}

func runAnalyze(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("analyze", flag.ContinueOnError)
	cfgPath := fs.String("config", defaultConfigPath, "path to config file")
	kindName := fs.String("kind", string(analysis.Summary), "analysis: root_cause, development or summary")
	outPath := fs.String("out", "", "also save the report to this file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	kind, err := analysis.ParseKind(*kindName)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		return err
	}
	store, err := eventlog.Open(cfg.EventLog)
	if err != nil {
		return err
	}
	defer store.Close()
	events, err := store.List(ctx)
	if err != nil {
		return err
	}

	client, err := analysis.NewOllamaClient(cfg.Analysis.OllamaURL, cfg.Analysis.Model, cfg.AnalysisTimeout())
	if err != nil {
		return err
	}
	text, err := analysis.NewAnalyzer(client).Run(ctx, kind, events)
	if errors.Is(err, analysis.ErrNoEvents) {
		return fmt.Errorf("%w: run \"babycam log\" first", err)
	}
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "\n--- %s ---\n%s\n", kind.Title(), text)
	if *outPath != "" {
		if err := analysis.SaveReport(*outPath, text, time.Now()); err != nil {
			return err
		}
		fmt.Fprintf(out, "Analysis saved to: %s\n", *outPath)
	}
	return nil
}

func runWake(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("wake", flag.ContinueOnError)
	cfgPath := fs.String("config", defaultConfigPath, "path to config file")
	windowsArg := fs.String("windows", "", "recent wake windows in minutes, oldest first, e.g. 120,135,125,110,115")
	wakeArg := fs.String("wake", "07:00", "time of the last wake-up, HH:MM")
	if err := fs.Parse(args); err != nil {
		return err
	}

	windows, err := wakewindow.ParseWindows(*windowsArg)
	if err != nil {
		return err
	}
	wake, err := wakewindow.ParseClock(*wakeArg, time.Now())
	if err != nil {
		return err
	}
	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		return err
	}

	p, err := wakewindow.Predict(wakewindow.SettingsFromConfig(cfg), windows, wake)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, "--- PREDICTION ---")
	fmt.Fprintf(out, "Current Trend (Window): %d minutes\n", int(p.Window.Minutes()))
	fmt.Fprintf(out, "Predicted Crash Zone:   %s\n", p.CrashAt.Format("15:04"))
	fmt.Fprintf(out, "START WIND DOWN AT:     %s\n", p.WindDownAt.Format("15:04"))
	return nil
}
