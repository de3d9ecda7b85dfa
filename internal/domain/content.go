package domain

import "time"

// AuthorType distinguishes human and robot authors.
type AuthorType string

const (
	AuthorUser  AuthorType = "user"
	AuthorRobot AuthorType = "robot"
)

// Post is a feed entry. A share is a post that references SharedPostID.
type Post struct {
	ID            string     `json:"id"`
	AuthorID      string     `json:"authorId"`
	AuthorType    AuthorType `json:"authorType"`
	Content       string     `json:"content"`
	SharedPostID  string     `json:"sharedPostId,omitempty"`
	InnerThoughts string     `json:"innerThoughts,omitempty"`
	PublishAt     time.Time  `json:"publishAt"`
	CreatedAt     time.Time  `json:"createdAt"`
}

// Comment is a response under a post. A reply references ParentCommentID.
type Comment struct {
	ID              string     `json:"id"`
	PostID          string     `json:"postId"`
	ParentCommentID string     `json:"parentCommentId,omitempty"`
	AuthorID        string     `json:"authorId"`
	AuthorType      AuthorType `json:"authorType"`
	Content         string     `json:"content"`
	InnerThoughts   string     `json:"innerThoughts,omitempty"`
	PublishAt       time.Time  `json:"publishAt"`
	CreatedAt       time.Time  `json:"createdAt"`
}
