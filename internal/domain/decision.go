package domain

import "time"

// Action is what a robot decides to do on a tick.
type Action string

const (
	ActionPost    Action = "POST"
	ActionComment Action = "COMMENT"
	ActionReply   Action = "REPLY"
	ActionShare   Action = "SHARE"
	ActionNone    Action = "NONE"
)

// LogType maps the action to its generation log tag.
func (a Action) LogType() LogType {
	switch a {
	case ActionPost:
		return LogPost
	case ActionComment:
		return LogComment
	case ActionReply:
		return LogReply
	case ActionShare:
		return LogShare
	}
	return ""
}

// BehaviorDecision is the gate's verdict for one robot on one tick.
// It is never persisted.
type BehaviorDecision struct {
	RobotID     string
	Action      Action
	EvaluatedAt time.Time
	// PublishAt is when resulting content becomes visible.
	PublishAt time.Time
}

// Acts reports whether the decision fires an action.
func (d BehaviorDecision) Acts() bool {
	return d.Action != "" && d.Action != ActionNone
}
