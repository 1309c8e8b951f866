// Package analysis asks a language model to interpret the monitor event log:
// distress root causes, developmental trends and general health summaries.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/cjeanneret/babycam/internal/debug"
	"github.com/cjeanneret/babycam/internal/eventlog"
)

// ErrNoEvents is returned when there is nothing to analyze.
var ErrNoEvents = errors.New("no events logged yet")

// Generator produces a completion for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Analyzer runs analyses with a Generator.
type Analyzer struct {
	gen Generator
}

func NewAnalyzer(gen Generator) *Analyzer {
	return &Analyzer{gen: gen}
}

// Run builds the prompt for kind and returns the model's answer.
func (a *Analyzer) Run(ctx context.Context, kind Kind, events []eventlog.Event) (string, error) {
	if len(events) == 0 {
		return "", ErrNoEvents
	}
	prompt, err := BuildPrompt(kind, events)
	if err != nil {
		return "", err
	}
	debug.Info("Analyzing %d events (%s)...", len(events), kind)
	debug.Verbose("prompt: %d bytes", len(prompt))

	start := time.Now()
	text, err := a.gen.Generate(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("%s analysis: %w", kind, err)
	}
	debug.Info("Analysis done in %s", time.Since(start).Round(time.Millisecond))
	return text, nil
}

var rule = strings.Repeat("=", 60)

// FormatReport wraps text in the report header and footer.
func FormatReport(text string, now time.Time) string {
	return fmt.Sprintf("BABY TRACKING DATA ANALYSIS REPORT\nGenerated: %s\n%s\n\n%s\n\n%s\nEnd of Report\n",
		now.Format("2006-01-02 15:04:05"), rule, text, rule)
}

// SaveReport writes the formatted report to path.
func SaveReport(path, text string, now time.Time) error {
	if err := os.WriteFile(path, []byte(FormatReport(text, now)), 0o644); err != nil {
		return fmt.Errorf("save report: %w", err)
	}
	return nil
}
