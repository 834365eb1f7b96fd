package domain

import "time"

// TransitionStatus enumerates the lifecycle of a campaign transition run.
type TransitionStatus string

const (
	TransitionPending  TransitionStatus = "pending"
	TransitionRunning  TransitionStatus = "running"
	TransitionComplete TransitionStatus = "complete"
	TransitionFailed   TransitionStatus = "failed"
)

// Transition records one invocation of transition_campaigns, moving
// subscriber cohorts from a source campaign to a successor campaign.
type Transition struct {
	ID                   string           `json:"id" db:"id"`
	SourceCampaignID     string           `json:"source_campaign_id" db:"source_campaign_id"`
	DestinationCampaignID string          `json:"destination_campaign_id" db:"destination_campaign_id"`
	Status               TransitionStatus `json:"status" db:"status"`
	CountTransferred     int              `json:"count_transferred" db:"count_transferred"`
	ErrorMessage         string           `json:"error_message,omitempty" db:"error_message"`

	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty" db:"completed_at"`
}

// TransitionSubscriber is an audit row: one subscriber moved by one
// transition run.
type TransitionSubscriber struct {
	TransitionID string    `json:"transition_id" db:"transition_id"`
	SubscriberID string    `json:"subscriber_id" db:"subscriber_id"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// TransitionRule is one row of the operator-configured transition matrix:
// subscribers currently at CurrentTier in the source campaign's group move
// to NextTier in the destination campaign's group, gated by purchase
// verification when RequiresPurchase is true.
type TransitionRule struct {
	CurrentTier      string `yaml:"current_tier" json:"current_tier"`
	NextTier         string `yaml:"next_tier" json:"next_tier"`
	RequiresPurchase bool   `yaml:"requires_purchase" json:"requires_purchase"`
}

// SyncStatus enumerates the lifecycle of a sync run as recorded in the log.
type SyncStatus string

const (
	SyncRunning   SyncStatus = "running"
	SyncCompleted SyncStatus = "completed"
	SyncFailed    SyncStatus = "failed"
	SyncStopped   SyncStatus = "stopped"
)

// SyncRecord is one row of the durable sync audit log.
type SyncRecord struct {
	ID                string     `json:"id" db:"id"`
	SyncDate          time.Time  `json:"sync_date" db:"sync_date"`
	Status            SyncStatus `json:"status" db:"status"`
	SyncedSubscribers int        `json:"synced_subscribers" db:"synced_subscribers"`
	Notes             string     `json:"notes,omitempty" db:"notes"`

	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty" db:"completed_at"`
}
