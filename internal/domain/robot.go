// Package domain contains core domain types for the robot feed.
package domain

import (
	"errors"
	"fmt"
	"time"
)

// TimeRange is a wall-clock window in zero-padded HH:mm form.
type TimeRange struct {
	Start string `json:"start" yaml:"start"`
	End   string `json:"end" yaml:"end"`
}

// Contains reports whether hhmm falls within the range, inclusive on both ends.
// A range whose end sorts before its start wraps past midnight.
func (r TimeRange) Contains(hhmm string) bool {
	if r.Start <= r.End {
		return hhmm >= r.Start && hhmm <= r.End
	}
	return hhmm >= r.Start || hhmm <= r.End
}

// RobotProfile holds a robot's persona and behavior parameters.
type RobotProfile struct {
	RobotID          string      `json:"robotId" yaml:"robotId"`
	Name             string      `json:"name" yaml:"name"`
	Nickname         string      `json:"nickname,omitempty" yaml:"nickname"`
	Gender           string      `json:"gender,omitempty" yaml:"gender"`
	Age              int         `json:"age,omitempty" yaml:"age"`
	Description      string      `json:"description,omitempty" yaml:"description"`
	Personality      string      `json:"personality,omitempty" yaml:"personality"`
	MBTI             string      `json:"mbti,omitempty" yaml:"mbti"`
	Location         string      `json:"location,omitempty" yaml:"location"`
	Occupation       string      `json:"occupation,omitempty" yaml:"occupation"`
	Background       string      `json:"background,omitempty" yaml:"background"`
	Interests        []string    `json:"interests,omitempty" yaml:"interests"`
	Traits           []string    `json:"traits,omitempty" yaml:"traits"`
	ReplySpeed       int         `json:"replySpeed" yaml:"replySpeed"`
	ReplyFrequency   int         `json:"replyFrequency" yaml:"replyFrequency"`
	ShareFrequency   int         `json:"shareFrequency" yaml:"shareFrequency"`
	// PostFrequency gates original posts. Zero means the gate default.
	PostFrequency    int         `json:"postFrequency,omitempty" yaml:"postFrequency"`
	ActiveTimeRanges []TimeRange `json:"activeTimeRanges" yaml:"activeTimeRanges"`
	IsActive         bool        `json:"isActive" yaml:"isActive"`
	CreatedAt        time.Time   `json:"createdAt" yaml:"-"`
	UpdatedAt        time.Time   `json:"updatedAt" yaml:"-"`
}

// ActiveAt reports whether hhmm falls into any active range.
// An empty range list means the robot is active all day.
func (p *RobotProfile) ActiveAt(hhmm string) bool {
	if len(p.ActiveTimeRanges) == 0 {
		return true
	}
	for _, r := range p.ActiveTimeRanges {
		if r.Contains(hhmm) {
			return true
		}
	}
	return false
}

// Validate checks the fields the scheduler depends on.
func (p *RobotProfile) Validate() error {
	if p.RobotID == "" {
		return errors.New("robotId cannot be empty")
	}
	if p.Name == "" {
		return errors.New("name cannot be empty")
	}
	for field, v := range map[string]int{
		"replySpeed":     p.ReplySpeed,
		"replyFrequency": p.ReplyFrequency,
		"shareFrequency": p.ShareFrequency,
	} {
		if v < 1 || v > 10 {
			return fmt.Errorf("%s must be between 1 and 10, got %d", field, v)
		}
	}
	if p.PostFrequency < 0 || p.PostFrequency > 10 {
		return fmt.Errorf("postFrequency must be between 0 and 10, got %d", p.PostFrequency)
	}
	for i, r := range p.ActiveTimeRanges {
		if !ValidClock(r.Start) || !ValidClock(r.End) {
			return fmt.Errorf("activeTimeRanges[%d] must use HH:mm, got %q-%q", i, r.Start, r.End)
		}
	}
	return nil
}

// ValidClock reports whether s is a zero-padded 24h HH:mm string.
func ValidClock(s string) bool {
	if len(s) != 5 || s[2] != ':' {
		return false
	}
	for _, i := range []int{0, 1, 3, 4} {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return s[:2] <= "23" && s[3:] <= "59"
}

// Clock formats t as HH:mm in its own location.
func Clock(t time.Time) string {
	return t.Format("15:04")
}

// UserRobotLink ties a human user to a robot they follow.
type UserRobotLink struct {
	UserID    string    `json:"userId" yaml:"userId"`
	RobotID   string    `json:"robotId" yaml:"robotId"`
	Status    string    `json:"status" yaml:"status"`
	Strength  int       `json:"strength" yaml:"strength"`
	CreatedAt time.Time `json:"createdAt" yaml:"-"`
}

// LinkStatusActive marks a link whose user receives the robot's updates.
const LinkStatusActive = "active"
