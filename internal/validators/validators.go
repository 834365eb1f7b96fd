// Package validators replaces the source's inherited-validator-base/mode-
// switch pattern (spec §9) with a composition of small, single-purpose
// validators. Each Validate method returns its findings as []Issue, with
// no error value (PurchaseIDValidator also returns the parsed order id,
// and GroupNameValidator only offers Normalize); callers
// decide pass/fail policy from the returned issues rather than the
// validator throwing.
package validators

import (
	"fmt"
	"net/mail"
	"regexp"
	"strconv"
	"strings"

	"github.com/ignite/campaign-sync-engine/internal/tierengine"
)

// Severity classifies how serious an Issue is.
type Severity int

const (
	// Warning issues are informational; callers may proceed.
	Warning Severity = iota
	// Rejected issues must cause the caller to skip the item.
	Rejected
)

// Issue is one validation finding against a single input value.
type Issue struct {
	Severity Severity
	Field    string
	Message  string
}

func (i Issue) String() string {
	return fmt.Sprintf("%s: %s", i.Field, i.Message)
}

// AnyRejected reports whether issues contains at least one Rejected entry.
func AnyRejected(issues []Issue) bool {
	for _, issue := range issues {
		if issue.Severity == Rejected {
			return true
		}
	}
	return false
}

// EmailValidator checks RFC validity of a subscriber email address.
type EmailValidator struct{}

// Validate returns a Rejected issue if email does not parse as an
// RFC 5322 address.
func (EmailValidator) Validate(email string) []Issue {
	if _, err := mail.ParseAddress(email); err != nil {
		return []Issue{{Severity: Rejected, Field: "email", Message: "invalid email address"}}
	}
	return nil
}

var campaignNamePattern = regexp.MustCompile(`^[0-9]{4}_[A-Z0-9]+_[A-Z0-9]+$`)

// CampaignCodeValidator checks the YYYY_ARTIST_PRODUCT campaign name shape
// (spec §8 boundary behaviour).
type CampaignCodeValidator struct{}

// Validate returns a Rejected issue if name does not match the required
// campaign code pattern.
func (CampaignCodeValidator) Validate(name string) []Issue {
	if !campaignNamePattern.MatchString(name) {
		return []Issue{{
			Severity: Rejected,
			Field:    "name",
			Message:  "campaign name must match ^[0-9]{4}_[A-Z0-9]+_[A-Z0-9]+$",
		}}
	}
	return nil
}

// TierValidator checks that a tier name belongs to the engine's configured
// ordered tier set.
type TierValidator struct {
	Engine *tierengine.Engine
}

// Validate returns a Rejected issue if tier is not a known configured tier.
func (v TierValidator) Validate(tier string) []Issue {
	if !v.Engine.IsKnownTier(tier) {
		return []Issue{{Severity: Rejected, Field: "tier", Message: "unknown tier: " + tier}}
	}
	return nil
}

// TransitionLegalityValidator checks a proposed from->to move against the
// engine's transition matrix.
type TransitionLegalityValidator struct {
	Engine *tierengine.Engine
}

// TransitionInput is the (from, to, purchased) triple under review.
type TransitionInput struct {
	From      string
	To        string
	Purchased bool
}

// Validate returns a Rejected issue if the move is not a permitted edge
// given the supplied purchase evidence.
func (v TransitionLegalityValidator) Validate(in TransitionInput) []Issue {
	if !v.Engine.IsLegal(in.From, in.To, in.Purchased) {
		return []Issue{{
			Severity: Rejected,
			Field:    "transition",
			Message:  fmt.Sprintf("%s -> %s is not a legal transition (purchased=%v)", in.From, in.To, in.Purchased),
		}}
	}
	return nil
}

// PurchaseIDValidator resolves the shape ambiguity from spec §9 Open
// Question 3: the upstream custom field stores either a bare positive
// integer order id or some other token. Anything that is not a positive
// integer is rejected rather than guessed at.
type PurchaseIDValidator struct{}

// Validate parses raw as a positive integer order id, returning it on
// success or a Rejected issue on any other shape.
func (PurchaseIDValidator) Validate(raw string) (int64, []Issue) {
	raw = strings.TrimSpace(raw)
	orderID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || orderID <= 0 {
		return 0, []Issue{{
			Severity: Rejected,
			Field:    "purchase_id",
			Message:  "purchase field does not hold a positive integer order id",
		}}
	}
	return orderID, nil
}

// GroupNameValidator normalizes upstream group name casing per spec §9
// Open Question 4: comparisons are always uppercase regardless of what
// casing the upstream API happens to return.
type GroupNameValidator struct{}

// Normalize returns name uppercased for comparison and storage.
func (GroupNameValidator) Normalize(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}
