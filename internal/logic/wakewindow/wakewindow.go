// Package wakewindow predicts when a baby will next need to sleep from the
// lengths of its recent wake windows.
package wakewindow

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/cjeanneret/babycam/internal/config"
)

// ErrNotEnoughWindows is returned when there is no historic window left
// once the recent ones are set aside.
var ErrNotEnoughWindows = errors.New("not enough wake windows")

// Settings weights recent windows against older ones.
type Settings struct {
	RecentCount    int
	RecentWeight   float64
	HistoricWeight float64
	WindDown       time.Duration
}

// DefaultSettings: last 2 windows weigh 0.7, the rest 0.3, 20 minute wind-down.
func DefaultSettings() Settings {
	return Settings{RecentCount: 2, RecentWeight: 0.7, HistoricWeight: 0.3, WindDown: 20 * time.Minute}
}

// SettingsFromConfig converts the wake section of the configuration.
func SettingsFromConfig(c *config.Config) Settings {
	return Settings{
		RecentCount:    c.Wake.RecentCount,
		RecentWeight:   c.Wake.RecentWeight,
		HistoricWeight: c.Wake.HistoricWeight,
		WindDown:       c.WindDownBuffer(),
	}
}

// Prediction is the expected end of the current wake window.
type Prediction struct {
	Window     time.Duration // predicted wake window length
	CrashAt    time.Time     // expected tiredness onset
	WindDownAt time.Time     // when to start calming down
}

// Predict computes the weighted wake window from windows (oldest first)
// and projects it from wake.
func Predict(s Settings, windows []time.Duration, wake time.Time) (Prediction, error) {
	if s.RecentCount <= 0 {
		return Prediction{}, fmt.Errorf("recent count must be > 0, got %d", s.RecentCount)
	}
	if len(windows) < s.RecentCount+1 {
		return Prediction{}, fmt.Errorf("%w: need at least %d, got %d", ErrNotEnoughWindows, s.RecentCount+1, len(windows))
	}
	for i, w := range windows {
		if w <= 0 {
			return Prediction{}, fmt.Errorf("wake window %d must be > 0, got %s", i+1, w)
		}
	}

	split := len(windows) - s.RecentCount
	recent := mean(windows[split:])
	historic := mean(windows[:split])
	window := time.Duration(math.Round(recent*s.RecentWeight + historic*s.HistoricWeight))

	crash := wake.Add(window)
	return Prediction{
		Window:     window,
		CrashAt:    crash,
		WindDownAt: crash.Add(-s.WindDown),
	}, nil
}

func mean(ds []time.Duration) float64 {
	var sum float64
	for _, d := range ds {
		sum += float64(d)
	}
	return sum / float64(len(ds))
}

// ParseWindows parses a comma-separated list of window lengths in minutes.
func ParseWindows(s string) ([]time.Duration, error) {
	var out []time.Duration
	for _, field := range strings.Split(s, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		m, err := strconv.ParseFloat(field, 64)
		if err != nil || math.IsNaN(m) || math.IsInf(m, 0) {
			return nil, fmt.Errorf("invalid wake window %q (minutes)", field)
		}
		out = append(out, time.Duration(m*float64(time.Minute)))
	}
	return out, nil
}

// ParseClock parses an "HH:MM" wake time on the day of ref.
func ParseClock(s string, ref time.Time) (time.Time, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid wake time %q, want HH:MM", s)
	}
	y, mo, d := ref.Date()
	return time.Date(y, mo, d, t.Hour(), t.Minute(), 0, 0, ref.Location()), nil
}
