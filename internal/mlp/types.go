package mlp

import "encoding/json"

// envelope mirrors the {metadata, payload} shape the provider wraps every
// response in. Payload is kept as raw JSON so doRequest can re-expose it
// to callers without knowing its shape up front.
type envelope struct {
	Metadata struct {
		Error   bool   `json:"error"`
		Message string `json:"message,omitempty"`
	} `json:"metadata"`
	Payload json.RawMessage `json:"payload"`
}

// GroupWire is the wire representation of an upstream group.
type GroupWire struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// FieldWire is the wire representation of an upstream custom field.
type FieldWire struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"`
}

// SubscriberWire is the wire representation of an upstream subscriber.
type SubscriberWire struct {
	ID           string            `json:"id"`
	Email        string            `json:"email"`
	Status       string            `json:"status"`
	FirstName    string            `json:"first_name"`
	LastName     string            `json:"last_name"`
	DisplayName  string            `json:"display_name"`
	CustomFields map[string]string `json:"custom_fields"`
}

// CampaignRef is the minimal campaign identity MLP returns when listing or
// drafting campaigns — just enough to resolve name to id.
type CampaignRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// subscriberPage is the cursor-paginated subscriber listing envelope.
type subscriberPage struct {
	Subscribers []SubscriberWire `json:"subscribers"`
	NextCursor  string           `json:"next_cursor"`
}

// groupSubscriberPage is a single page of a group's membership listing.
type groupSubscriberPage struct {
	Subscribers []SubscriberWire `json:"subscribers"`
	HasMore     bool             `json:"has_more"`
}

// ListSubscribersParams controls a cursor-paginated subscriber listing.
type ListSubscribersParams struct {
	Cursor string
	Limit  int
}
