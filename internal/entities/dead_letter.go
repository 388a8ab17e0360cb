package entities

import "time"

// DeadLetter is a delivery the queue gave up on.
type DeadLetter struct {
	ID                   int64     `json:"id"`
	MessageID            string    `json:"message_id"`
	Stream               string    `json:"stream"`
	Kind                 string    `json:"kind"`
	InodeID              string    `json:"inode_id"`
	ObjectKey            string    `json:"object_key"`
	Payload              string    `json:"payload"`
	ReceiveCount         int       `json:"receive_count"`
	Reason               string    `json:"reason"`
	TerminalEventEmitted bool      `json:"terminal_event_emitted"`
	CreatedAt            time.Time `json:"created_at"`
}
