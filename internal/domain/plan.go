package domain

import "time"

// PlanStatus is the generation state of a daily plan.
type PlanStatus string

const (
	PlanPending PlanStatus = "PENDING"
	PlanSuccess PlanStatus = "SUCCESS"
	PlanFailed  PlanStatus = "FAILED"
)

// PlanEvent is one thing the robot does in a slot.
type PlanEvent struct {
	Content string `json:"content"`
	Mood    string `json:"mood"`
}

// PlanSlot is a clock interval of the robot's day.
type PlanSlot struct {
	Start  string      `json:"start"`
	End    string      `json:"end"`
	Events []PlanEvent `json:"events"`
}

// DailyPlan is the generated schedule for one robot on one date.
type DailyPlan struct {
	ID        string     `json:"id"`
	RobotID   string     `json:"robotId"`
	PlanDate  string     `json:"planDate"`
	Diary     string     `json:"diary"`
	Slots     []PlanSlot `json:"slots"`
	Status    PlanStatus `json:"status"`
	ErrorMsg  string     `json:"errorMsg,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
	IsDeleted bool       `json:"isDeleted"`
}

// Usable reports whether the plan can seed content generation.
func (p *DailyPlan) Usable() bool {
	return p != nil && p.Status == PlanSuccess
}

// SlotAt returns the slot with start <= hhmm < end, or nil.
func (p *DailyPlan) SlotAt(hhmm string) *PlanSlot {
	if p == nil {
		return nil
	}
	for i := range p.Slots {
		s := &p.Slots[i]
		if s.Start <= hhmm && hhmm < s.End {
			return s
		}
	}
	return nil
}

// DateLayout is the ISO calendar date used as plan key.
const DateLayout = "2006-01-02"

// PlanDate formats t as a plan key date.
func PlanDate(t time.Time) string {
	return t.Format(DateLayout)
}
