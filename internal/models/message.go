package models

import "time"

// Message is a board post. Notice uses the same shape for admin broadcasts.
type Message struct {
	ID       int64     `json:"id"`
	UserID   int64     `json:"user_id"`
	UserName string    `json:"user_name"`
	Content  string    `json:"content"`
	ReplyTo  *int64    `json:"reply_to,omitempty"`
	PubDate  time.Time `json:"pub_date"`
}

type Notice Message
