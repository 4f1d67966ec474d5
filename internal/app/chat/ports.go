package chat

import "context"

// Notification is the out-of-band push payload: a truncated preview of
// the message plus opaque routing data for the client.
type Notification struct {
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Image string            `json:"image,omitempty"`
	Data  map[string]string `json:"data,omitempty"`
}

// Receipt reports the outcome of an accepted dispatch.
type Receipt struct {
	StatusCode int
}

// Dispatcher sends a push notification to one device token. Dispatch is
// fire-and-forget from the sender's point of view: the engine logs
// failures and leaves the message status untouched.
type Dispatcher interface {
	Send(ctx context.Context, token string, n Notification) (Receipt, error)
}

// AvatarResolver maps a stored avatar object key to a public URL for the
// push preview image.
type AvatarResolver interface {
	AvatarURL(ctx context.Context, key string) (string, bool)
}
