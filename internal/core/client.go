package core

// Client is one websocket connection of a user as seen by the hub.
type Client struct {
	ID     string
	UserID int64
	Name   string
	Events chan *Event
}

// NewClient constructs a client with an initialized event channel.
func NewClient(id string, userID int64, name string) *Client {
	if name == "" {
		name = id
	}
	return &Client{
		ID:     id,
		UserID: userID,
		Name:   name,
		Events: make(chan *Event, 16),
	}
}

func (c *Client) send(ev *Event) bool {
	select {
	case c.Events <- ev:
		return true
	default:
		// Drop if slow consumer.
		return false
	}
}
