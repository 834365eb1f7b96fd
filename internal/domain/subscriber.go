package domain

import "time"

// SubscriberStatus enumerates the upstream lifecycle states of a subscriber.
type SubscriberStatus string

const (
	SubscriberActive       SubscriberStatus = "active"
	SubscriberUnsubscribed SubscriberStatus = "unsubscribed"
	SubscriberUnconfirmed  SubscriberStatus = "unconfirmed"
	SubscriberBounced      SubscriberStatus = "bounced"
	SubscriberJunk         SubscriberStatus = "junk"
)

// Subscriber mirrors an MLP contact as materialized locally.
type Subscriber struct {
	ID           string            `json:"id" db:"id"`
	Email        string            `json:"email" db:"email"`
	Status       SubscriberStatus  `json:"status" db:"status"`
	FirstName    string            `json:"first_name" db:"first_name"`
	LastName     string            `json:"last_name" db:"last_name"`
	DisplayName  string            `json:"display_name" db:"display_name"`
	CustomFields map[string]string `json:"custom_fields" db:"custom_fields"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// CampaignGroupSubscriber records a subscriber's membership and tier within
// one campaign. Primary key is (CampaignID, SubscriberID).
type CampaignGroupSubscriber struct {
	CampaignID     string  `json:"campaign_id" db:"campaign_id"`
	SubscriberID   string  `json:"subscriber_id" db:"subscriber_id"`
	GroupID        string  `json:"group_id" db:"group_id"`
	SubscriberTier string  `json:"subscriber_tier" db:"subscriber_tier"`
	PurchaseID     *string `json:"purchase_id,omitempty" db:"purchase_id"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
