package storage

import (
	"time"

	"github.com/google/uuid"
)

// ClientStatus is the connection state of a messaging session.
type ClientStatus string

const (
	ClientInitializing ClientStatus = "INITIALIZING"
	ClientConnected    ClientStatus = "CONNECTED"
	ClientDisconnected ClientStatus = "DISCONNECTED"
	ClientLogout       ClientStatus = "LOGOUT"
)

// MessageStatus is the delivery state of one message record.
type MessageStatus string

const (
	MessagePending MessageStatus = "PENDING"
	MessageSent    MessageStatus = "SENT"
	MessageFailed  MessageStatus = "FAILED"
)

// Valid reports whether s is one of the known message states.
func (s MessageStatus) Valid() bool {
	switch s {
	case MessagePending, MessageSent, MessageFailed:
		return true
	}
	return false
}

type User struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Client is a user's messaging session.
type Client struct {
	ID        uuid.UUID    `json:"id"`
	UserID    uuid.UUID    `json:"userId"`
	Status    ClientStatus `json:"status"`
	CreatedAt time.Time    `json:"createdAt"`
	UpdatedAt time.Time    `json:"updatedAt"`
}

// Message is one outbound send to one recipient.
type Message struct {
	ID         uuid.UUID     `json:"id"`
	ClientID   uuid.UUID     `json:"clientId"`
	BatchID    uuid.UUID     `json:"batchId"`
	Number     string        `json:"number"`
	Content    string        `json:"content"`
	MediaURL   *string       `json:"mediaUrl"`
	Status     MessageStatus `json:"status"`
	Error      *string       `json:"error"`
	ExternalID *string       `json:"externalId,omitempty"`
	CreatedAt  time.Time     `json:"createdAt"`
	UpdatedAt  time.Time     `json:"updatedAt"`
	SentAt     *time.Time    `json:"sentAt,omitempty"`
}

// CreateMessagesParams describes one batch of per-recipient rows.
type CreateMessagesParams struct {
	ClientID uuid.UUID
	BatchID  uuid.UUID
	Numbers  []string
	Content  string
	MediaURL *string
}

// ListMessagesParams selects one page of a session's messages.
type ListMessagesParams struct {
	Status *MessageStatus
	Limit  int32
	Offset int32
}

// MessagePage is a page of messages together with the unpaged total,
// both read from the same snapshot.
type MessagePage struct {
	Client   Client
	Messages []Message
	Total    int64
}
