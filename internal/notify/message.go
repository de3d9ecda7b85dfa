// Package notify pushes feed events to connected subscribers.
package notify

import (
	"encoding/json"
	"time"

	"github.com/ashureev/robofeed/internal/domain"
	"github.com/google/uuid"
)

// Kind discriminates notification messages.
type Kind string

const (
	KindPostUpdate    Kind = "POST_UPDATE"
	KindCommentUpdate Kind = "COMMENT_UPDATE"
	KindNotification  Kind = "NOTIFICATION"
	KindRobotAction   Kind = "ROBOT_ACTION"
	KindSystemMessage Kind = "SYSTEM_MESSAGE"
	KindHeartbeat     Kind = "HEARTBEAT"
)

// SenderSystem is the sender ID of messages not authored by a robot or user.
const SenderSystem = "system"

// Payload is the closed set of message data shapes.
type Payload interface {
	payload()
}

// PostSummary is the data of a POST_UPDATE.
type PostSummary struct {
	PostID       string    `json:"postId"`
	AuthorID     string    `json:"authorId"`
	AuthorType   string    `json:"authorType"`
	Content      string    `json:"content"`
	SharedPostID string    `json:"sharedPostId,omitempty"`
	PublishAt    time.Time `json:"publishAt"`
}

// CommentSummary is the data of a COMMENT_UPDATE.
type CommentSummary struct {
	CommentID       string    `json:"commentId"`
	PostID          string    `json:"postId"`
	ParentCommentID string    `json:"parentCommentId,omitempty"`
	AuthorID        string    `json:"authorId"`
	AuthorType      string    `json:"authorType"`
	Content         string    `json:"content"`
	PublishAt       time.Time `json:"publishAt"`
}

// NoticeBody is the data of a NOTIFICATION or SYSTEM_MESSAGE.
type NoticeBody struct {
	Text string `json:"text,omitempty"`
	Link string `json:"link,omitempty"`
}

// RobotActionSummary is the data of a ROBOT_ACTION.
type RobotActionSummary struct {
	RobotID       string    `json:"robotId"`
	RobotName     string    `json:"robotName"`
	Action        string    `json:"action"`
	ArtifactID    string    `json:"artifactId"`
	InnerThoughts string    `json:"innerThoughts,omitempty"`
	PublishAt     time.Time `json:"publishAt"`
}

func (PostSummary) payload()        {}
func (CommentSummary) payload()     {}
func (NoticeBody) payload()         {}
func (RobotActionSummary) payload() {}

// Message is one pushed event.
type Message struct {
	ID           string
	Kind         Kind
	Title        string
	Content      string
	Data         Payload
	SenderID     string
	SenderType   string
	TargetUserID string
	Priority     int
	Tags         []string
	CreatedAt    time.Time
	ExpiresAt    *time.Time
	IsRead       bool
}

type wireMessage struct {
	MessageID    string     `json:"messageId"`
	Type         Kind       `json:"type"`
	Title        string     `json:"title"`
	Content      string     `json:"content"`
	Data         Payload    `json:"data,omitempty"`
	SenderID     string     `json:"senderId"`
	SenderType   string     `json:"senderType"`
	TargetUserID string     `json:"targetUserId,omitempty"`
	Priority     int        `json:"priority"`
	Tags         []string   `json:"tags"`
	CreatedAt    time.Time  `json:"createdAt"`
	ExpiresAt    *time.Time `json:"expiresAt,omitempty"`
	IsRead       bool       `json:"isRead"`
}

// MarshalJSON encodes the message in its wire shape. HEARTBEAT never carries data.
func (m Message) MarshalJSON() ([]byte, error) {
	w := wireMessage{
		MessageID:    m.ID,
		Type:         m.Kind,
		Title:        m.Title,
		Content:      m.Content,
		Data:         m.Data,
		SenderID:     m.SenderID,
		SenderType:   m.SenderType,
		TargetUserID: m.TargetUserID,
		Priority:     clampPriority(m.Priority),
		Tags:         m.Tags,
		CreatedAt:    m.CreatedAt,
		ExpiresAt:    m.ExpiresAt,
		IsRead:       m.IsRead,
	}
	if m.Kind == KindHeartbeat {
		w.Data = nil
	}
	if w.Tags == nil {
		w.Tags = []string{}
	}
	return json.Marshal(w)
}

func clampPriority(p int) int {
	return min(max(p, 1), 10)
}

func newMessage(kind Kind, title, content string, priority int, data Payload) Message {
	return Message{
		ID:         uuid.NewString(),
		Kind:       kind,
		Title:      title,
		Content:    content,
		Data:       data,
		SenderID:   SenderSystem,
		SenderType: SenderSystem,
		Priority:   clampPriority(priority),
		CreatedAt:  time.Now(),
	}
}

// NewPostUpdate announces a published post or share.
func NewPostUpdate(post *domain.Post) Message {
	m := newMessage(KindPostUpdate, "New post", post.Content, 5, PostSummary{
		PostID:       post.ID,
		AuthorID:     post.AuthorID,
		AuthorType:   string(post.AuthorType),
		Content:      post.Content,
		SharedPostID: post.SharedPostID,
		PublishAt:    post.PublishAt,
	})
	m.SenderID, m.SenderType = post.AuthorID, string(post.AuthorType)
	m.Tags = []string{"post"}
	if post.SharedPostID != "" {
		m.Tags = append(m.Tags, "share")
	}
	return m
}

// NewCommentUpdate announces a published comment or reply.
func NewCommentUpdate(c *domain.Comment) Message {
	m := newMessage(KindCommentUpdate, "New comment", c.Content, 6, CommentSummary{
		CommentID:       c.ID,
		PostID:          c.PostID,
		ParentCommentID: c.ParentCommentID,
		AuthorID:        c.AuthorID,
		AuthorType:      string(c.AuthorType),
		Content:         c.Content,
		PublishAt:       c.PublishAt,
	})
	m.SenderID, m.SenderType = c.AuthorID, string(c.AuthorType)
	m.Tags = []string{"comment"}
	if c.ParentCommentID != "" {
		m.Tags = append(m.Tags, "reply")
	}
	return m
}

// NewNotification is a user-targeted notice.
func NewNotification(targetUserID, title, content string, body NoticeBody) Message {
	m := newMessage(KindNotification, title, content, 7, body)
	m.TargetUserID = targetUserID
	return m
}

// NewRobotAction summarizes what a robot just did and what it was thinking.
func NewRobotAction(robot *domain.RobotProfile, action domain.Action, artifactID, innerThoughts string, publishAt time.Time) Message {
	m := newMessage(KindRobotAction, "Robot action", robot.Name+" "+actionVerb(action), 4, RobotActionSummary{
		RobotID:       robot.RobotID,
		RobotName:     robot.Name,
		Action:        string(action),
		ArtifactID:    artifactID,
		InnerThoughts: innerThoughts,
		PublishAt:     publishAt,
	})
	m.SenderID, m.SenderType = robot.RobotID, string(domain.AuthorRobot)
	m.Tags = []string{"robot", string(action.LogType())}
	return m
}

// NewSystemMessage is an operational broadcast.
func NewSystemMessage(title, content string) Message {
	return newMessage(KindSystemMessage, title, content, 3, NoticeBody{Text: content})
}

// NewHeartbeat is a liveness ping with no data.
func NewHeartbeat() Message {
	return newMessage(KindHeartbeat, "heartbeat", "ping", 1, nil)
}

func actionVerb(a domain.Action) string {
	switch a {
	case domain.ActionPost:
		return "posted"
	case domain.ActionComment:
		return "commented"
	case domain.ActionReply:
		return "replied"
	case domain.ActionShare:
		return "shared a post"
	}
	return "acted"
}
