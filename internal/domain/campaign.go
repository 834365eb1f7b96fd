package domain

import "time"

// Campaign is a named marketing wave (e.g. an album release) with an
// associated DDS product and a set of upstream tier groups.
//
// Invariants: Name is unique and uppercase in the form YYYY_ARTIST_PRODUCT;
// ID (the MLP-assigned identifier) is unique. Created when first synced or
// drafted; mutated only by the sync pipeline; never auto-deleted.
type Campaign struct {
	ID        string `json:"id" db:"id"`
	Name      string `json:"name" db:"name"`
	ProductID string `json:"product_id" db:"product_id"`
	Artist    string `json:"artist" db:"artist"`
	Album     string `json:"album" db:"album"`
	Year      int    `json:"year" db:"year"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Field is an upstream custom subscriber attribute. The engine maintains
// exactly one numeric field per campaign, named <CAMPAIGN>_PURCHASE.
type Field struct {
	ID         string `json:"id" db:"id"`
	FieldName  string `json:"field_name" db:"field_name"`
	CampaignID string `json:"campaign_id" db:"campaign_id"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Group is an upstream named audience representing one (campaign, tier)
// pair. At most one group exists per (campaign, tier); groups are deleted
// locally when a validation sweep observes them missing upstream.
type Group struct {
	ID         string `json:"id" db:"id"`
	GroupName  string `json:"group_name" db:"group_name"`
	CampaignID string `json:"campaign_id" db:"campaign_id"`
	Tier       string `json:"tier" db:"tier"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
