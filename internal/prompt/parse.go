package prompt

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/ashureev/robofeed/internal/domain"
)

var (
	newlineRuns = regexp.MustCompile(`\n+`)
	spaceRuns   = regexp.MustCompile(` +`)
)

const emptyThink = "<think>\n</think>\n"

// CleanCompletion normalizes a raw answer into publishable text.
func CleanCompletion(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	s = newlineRuns.ReplaceAllString(s, "\n")
	s = spaceRuns.ReplaceAllString(s, " ")
	for i := 0; i < 2; i++ {
		s = unwrap(s, `"`)
	}
	s = unwrap(s, "'")
	s = strings.TrimPrefix(s, emptyThink)
	return strings.TrimSpace(s)
}

func unwrap(s, quote string) string {
	if len(s) >= 2*len(quote) && strings.HasPrefix(s, quote) && strings.HasSuffix(s, quote) {
		return s[len(quote) : len(s)-len(quote)]
	}
	return s
}

// ErrEmptyPlan is returned when a plan completion holds no slots.
var ErrEmptyPlan = errors.New("plan has no slots")

type planPayload struct {
	Diary string            `json:"diary"`
	Slots []domain.PlanSlot `json:"slots"`
}

// ParsePlan decodes a daily plan completion into its diary and slots.
func ParsePlan(answer string) (string, []domain.PlanSlot, error) {
	s := answer
	if i := strings.Index(s, "</think>\n"); i >= 0 {
		s = s[i+len("</think>\n"):]
	}
	s = stripFence(strings.TrimSpace(s))

	var payload planPayload
	if err := json.Unmarshal([]byte(s), &payload); err != nil {
		return "", nil, fmt.Errorf("decode plan json: %w", err)
	}
	if len(payload.Slots) == 0 {
		return "", nil, ErrEmptyPlan
	}
	for i, slot := range payload.Slots {
		if !domain.ValidClock(slot.Start) || !domain.ValidClock(slot.End) {
			return "", nil, fmt.Errorf("slot %d has invalid time %q-%q", i, slot.Start, slot.End)
		}
	}
	return strings.TrimSpace(payload.Diary), payload.Slots, nil
}

func stripFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.Index(s, "\n"); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
