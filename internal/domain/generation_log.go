package domain

import "time"

// LogType tags what a generation attempt was producing.
type LogType string

const (
	LogPost    LogType = "post"
	LogComment LogType = "comment"
	LogReply   LogType = "reply"
	LogShare   LogType = "share"
	LogDiary   LogType = "diary"

	LogInnerThoughts LogType = "inner_thoughts"
)

// GenerationLog is an append-only record of one generation attempt.
// Failed attempts carry the error text as RawContent.
type GenerationLog struct {
	ID            string       `json:"id"`
	RobotSnapshot RobotProfile `json:"robotProfileSnapshot"`
	Prompt        string       `json:"prompt"`
	RawContent    string       `json:"rawContent"`
	GeneratedAt   time.Time    `json:"generatedAt"`
	Type          LogType      `json:"type"`
	Context       string       `json:"context,omitempty"`
	Failed        bool         `json:"failed"`
	ErrorKind     string       `json:"errorKind,omitempty"`
	TokensUsed    int          `json:"tokensUsed"`
}

// LogFilter narrows a log listing. Zero values match everything.
type LogFilter struct {
	RobotID string
	Type    LogType
	Limit   int
}
