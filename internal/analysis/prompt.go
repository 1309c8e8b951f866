package analysis

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/cjeanneret/babycam/internal/eventlog"
)

// Kind selects the analysis performed on the event log.
type Kind string

const (
	// RootCause looks for environmental correlations with distress events.
	RootCause Kind = "root_cause"
	// Development tracks skill trajectories (tummy time, sleep duration).
	Development Kind = "development"
	// Summary is a general sleep/emotion/feeding health report.
	Summary Kind = "summary"
)

// Kinds lists every supported analysis.
var Kinds = []Kind{RootCause, Development, Summary}

// ParseKind validates s as a Kind.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown analysis kind %q (want root_cause, development or summary)", s)
}

// Title is the console heading printed above a result.
func (k Kind) Title() string {
	switch k {
	case RootCause:
		return "ANALYSIS RESULT"
	case Development:
		return "DEVELOPMENT REPORT"
	default:
		return "ANALYSIS COMPLETE"
	}
}

// BuildPrompt renders the LLM prompt for kind over events.
func BuildPrompt(kind Kind, events []eventlog.Event) (string, error) {
	logData, err := json.MarshalIndent(events, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode events: %w", err)
	}

	switch kind {
	case RootCause:
		return fmt.Sprintf(`SYSTEM ROLE:
You are an expert Pattern Recognition Analyst for a biometric monitoring system.

OBJECTIVE:
Analyze the provided logs to find the Root Cause of 'distress' or 'anxiety' events.

INSTRUCTIONS:
1. Filter for all events tagged 'distress' or 'crying'.
2. Cross-reference these events with the 'environment' data (temperature, noise, time of day).
3. Identify patterns. (e.g., "Distress always happens when Temp > 26C").
4. You MUST cite the specific 'event_id' for every claim.

LOG DATA:
%s
`, logData), nil

	case Development:
		return fmt.Sprintf(`SYSTEM ROLE:
You are a Developmental Tracking Assistant.

OBJECTIVE:
Analyze the progress of specific skills (e.g., 'tummy_time', 'sleep_duration') over time.

INSTRUCTIONS:
1. Ignore environmental data. Focus on 'data' payload and timestamps.
2. Plot the trajectory: Is the duration/frequency Increasing, Decreasing, or Stagnant?
3. REGRESSION CHECK: Flag any significant drop in performance compared to previous weeks.
4. If the data is insufficient to form a trend, state "Insufficient data."

LOG DATA:
%s
`, logData), nil

	case Summary:
		return summaryPrompt(events), nil
	}
	return "", fmt.Errorf("unknown analysis kind %q", kind)
}

func summaryPrompt(events []eventlog.Event) string {
	var b strings.Builder
	b.WriteString("BABY TRACKING DATA ANALYSIS REQUEST\n\n")

	b.WriteString("Summary Statistics:\n")
	fmt.Fprintf(&b, "- Total Events: %d\n", len(events))
	if len(events) > 0 {
		fmt.Fprintf(&b, "- Tracking Period: %s to %s\n",
			events[0].Timestamp.Format("2006-01-02 15:04"), events[len(events)-1].Timestamp.Format("2006-01-02 15:04"))
	}
	counts := eventlog.CountByType(events)
	types := make([]string, 0, len(counts))
	for t := range counts {
		types = append(types, t)
	}
	sort.Strings(types)
	for _, t := range types {
		fmt.Fprintf(&b, "- %s: %d\n", t, counts[t])
	}

	b.WriteString("\nDETAILED TIMELINE:\n")
	for _, e := range events {
		fmt.Fprintf(&b, "\n--- %s (%s) [%s] ---\n", e.Timestamp.Format("2006-01-02T15:04:05"), e.Type, e.EventID)
		fmt.Fprintf(&b, "Data: %s\n", compact(e.Data))
		fmt.Fprintf(&b, "Environment: %s\n", compact(e.Environment))
	}

	b.WriteString(`
ANALYSIS REQUEST:
Please analyze this baby tracking data and provide a comprehensive report covering:

1. SLEEP PATTERN ANALYSIS:
   - Identify any abnormal sleep patterns (too much/little sleep, irregular schedules)
   - Evaluate sleep quality and consistency
   - Note any concerning sleep duration patterns (very short naps, insufficient night sleep, etc.)

2. EMOTION & BEHAVIOR ANALYSIS:
   - Identify abnormal emotional patterns (excessive fussiness, prolonged crying, lack of happy/content moods)
   - Note any sudden mood changes or concerning behavioral patterns
   - Evaluate overall emotional well-being

3. FEEDING ANALYSIS:
   - Check if feeding amounts and frequency are appropriate
   - Identify any feeding pattern abnormalities (overfeeding, underfeeding, irregular intervals)
   - Note any correlation between feeding and sleep/emotion patterns

4. OVERALL HEALTH INDICATORS:
   - Identify any patterns that might indicate health concerns
   - Note any red flags or areas requiring attention
   - Provide recommendations if abnormalities are detected

5. SUMMARY:
   - Overall assessment (healthy patterns vs concerns)
   - Key findings and actionable insights
   - Recommendations for improvement if needed

Please format your response in a clear, structured manner suitable for parents/caregivers.
`)
	return b.String()
}

func compact(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "{}"
	}
	var b bytes.Buffer
	if err := json.Compact(&b, raw); err != nil {
		return string(raw)
	}
	return b.String()
}
