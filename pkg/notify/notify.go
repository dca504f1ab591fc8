package notify

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

// ErrMessageNotFound is returned for unknown or expired preview IDs
var ErrMessageNotFound = errors.New("message not found")

// Message is an outbound HTML email
type Message struct {
	ID      string    `json:"id"`
	To      string    `json:"to"`
	Subject string    `json:"subject"`
	HTML    string    `json:"html"`
	SentAt  time.Time `json:"sent_at"`
}

// Receipt describes a delivered message. PreviewURL is set only by
// notifiers that keep a browsable copy.
type Receipt struct {
	MessageID  string `json:"message_id"`
	PreviewURL string `json:"preview_url,omitempty"`
}

// Notifier delivers email
type Notifier interface {
	Send(ctx context.Context, msg Message) (*Receipt, error)
}

func domainOf(addr string) string {
	if _, domain, ok := strings.Cut(addr, "@"); ok && domain != "" {
		return domain
	}
	return "localhost"
}

// PreviewNotifier keeps messages in memory instead of sending them and
// hands back a URL where each can be viewed. Entries expire after ttl.
type PreviewNotifier struct {
	baseURL  string
	messages *lru.LRU[string, Message]
	now      func() time.Time
}

// NewPreviewNotifier creates a preview outbox. baseURL is the public
// origin of the API; previews are served under /dev/mail/{id}.
func NewPreviewNotifier(baseURL string, size int, ttl time.Duration) *PreviewNotifier {
	if size <= 0 {
		size = 100
	}
	return &PreviewNotifier{
		baseURL:  strings.TrimRight(baseURL, "/"),
		messages: lru.NewLRU[string, Message](size, nil, ttl),
		now:      time.Now,
	}
}

// Send stores msg and returns its preview URL
func (n *PreviewNotifier) Send(ctx context.Context, msg Message) (*Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	msg.SentAt = n.now()
	n.messages.Add(msg.ID, msg)
	return &Receipt{
		MessageID:  msg.ID,
		PreviewURL: n.PreviewURL(msg.ID),
	}, nil
}

// PreviewURL builds the browse URL for a message ID
func (n *PreviewNotifier) PreviewURL(id string) string {
	return n.baseURL + "/dev/mail/" + id
}

// Get returns a stored message
func (n *PreviewNotifier) Get(id string) (Message, error) {
	msg, ok := n.messages.Get(id)
	if !ok {
		return Message{}, ErrMessageNotFound
	}
	return msg, nil
}

// Len reports how many previews are held
func (n *PreviewNotifier) Len() int {
	return n.messages.Len()
}
