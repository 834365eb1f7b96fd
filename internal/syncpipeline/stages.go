package syncpipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/ignite/campaign-sync-engine/internal/domain"
	"github.com/ignite/campaign-sync-engine/internal/pkg/logger"
	"github.com/ignite/campaign-sync-engine/internal/validators"
)

// stageSyncCampaigns merges the operator-maintained catalog with MLP's
// custom campaigns: MLP is authoritative for the assigned id, the catalog
// is authoritative for Name/Artist/Album/Year/ProductID. A campaign
// missing upstream gets drafted.
func (p *Pipeline) stageSyncCampaigns(ctx context.Context, cp *domain.ProgressCheckpoint) (int, error) {
	existing, err := p.mlp.ListCampaignsNameToID(ctx)
	if err != nil {
		return 0, fmt.Errorf("list campaigns: %w", err)
	}

	resuming := cp.Campaign != ""
	var out []domain.Campaign
	for _, entry := range p.cfg.Catalog {
		if resuming {
			// cp.Campaign is the last catalog entry already handled;
			// resume with the entry after it.
			if entry.Name == cp.Campaign {
				resuming = false
			}
			continue
		}
		if err := ctx.Err(); err != nil {
			return len(out), err
		}
		if stopped, serr := p.store.IsStopped(ctx); serr == nil && stopped {
			break
		}

		if issues := (validators.CampaignCodeValidator{}).Validate(entry.Name); validators.AnyRejected(issues) {
			p.recordError(ctx, "campaign-code", entry.Name, fmt.Errorf("%s", issues[0].Message))
			cp.Campaign = entry.Name
			continue
		}

		id, ok := existing[entry.Name]
		if !ok {
			subject := fmt.Sprintf("%s — %s", entry.Artist, entry.Album)
			ref, cerr := p.mlp.CreateDraftCampaign(ctx, entry.Name, "standard", subject)
			if cerr != nil {
				p.recordError(ctx, "campaign", entry.Name, cerr)
				cp.Campaign = entry.Name
				continue
			}
			id = ref.ID
		}

		out = append(out, domain.Campaign{
			ID:        id,
			Name:      entry.Name,
			ProductID: entry.ProductID,
			Artist:    entry.Artist,
			Album:     entry.Album,
			Year:      entry.Year,
		})
		cp.Campaign = entry.Name
	}

	if len(out) == 0 {
		return 0, nil
	}
	if err := p.repos.Campaigns.UpsertBulk(ctx, out); err != nil {
		return 0, fmt.Errorf("upsert campaigns: %w", err)
	}
	return len(out), nil
}

// stageSyncFields ensures every campaign has a numeric <CAMPAIGN>_PURCHASE
// field upstream and mirrors the assignment locally.
func (p *Pipeline) stageSyncFields(ctx context.Context, cp *domain.ProgressCheckpoint) (int, error) {
	campaigns, err := p.repos.Campaigns.ListAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("list local campaigns: %w", err)
	}
	existing, err := p.mlp.ListFields(ctx)
	if err != nil {
		return 0, fmt.Errorf("list fields: %w", err)
	}
	byName := make(map[string]string, len(existing))
	for _, f := range existing {
		byName[f.FieldName] = f.ID
	}

	resuming := cp.Campaign != ""
	var out []domain.Field
	for _, c := range campaigns {
		if resuming {
			if c.Name != cp.Campaign {
				continue
			}
			resuming = false
		}
		if err := ctx.Err(); err != nil {
			return len(out), err
		}

		name := fieldName(c.Name)
		id, ok := byName[name]
		if !ok {
			created, cerr := p.mlp.CreateField(ctx, name, "numeric")
			if cerr != nil {
				p.recordError(ctx, "field", name, cerr)
				cp.Campaign = c.Name
				continue
			}
			id = created.ID
		}
		out = append(out, domain.Field{ID: id, FieldName: name, CampaignID: c.ID})
		cp.Campaign = c.Name
	}

	if len(out) == 0 {
		return 0, nil
	}
	if err := p.repos.Fields.UpsertBulk(ctx, out); err != nil {
		return 0, fmt.Errorf("upsert fields: %w", err)
	}
	return len(out), nil
}

// stageSyncGroups ensures every (campaign, tier) pair has an upstream
// group named <CAMPAIGN>_<TIER>, matched case-insensitively.
func (p *Pipeline) stageSyncGroups(ctx context.Context, cp *domain.ProgressCheckpoint) (int, error) {
	campaigns, err := p.repos.Campaigns.ListAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("list local campaigns: %w", err)
	}
	existing, err := p.mlp.ListGroups(ctx)
	if err != nil {
		return 0, fmt.Errorf("list groups: %w", err)
	}
	byUpperName := make(map[string]string, len(existing))
	for _, g := range existing {
		byUpperName[strings.ToUpper(g.GroupName)] = g.ID
	}

	tiers := p.engine.Order()
	resumingCampaign := cp.Campaign != ""
	resumingTier := cp.Group != ""
	var out []domain.Group
	for _, c := range campaigns {
		if resumingCampaign {
			if c.Name != cp.Campaign {
				continue
			}
			resumingCampaign = false
		}
		for _, tier := range tiers {
			if resumingTier {
				if tier != cp.Group {
					continue
				}
				resumingTier = false
			}
			if err := ctx.Err(); err != nil {
				return len(out), err
			}

			name := groupName(c.Name, tier)
			id, ok := byUpperName[strings.ToUpper(name)]
			if !ok {
				created, cerr := p.mlp.CreateGroup(ctx, name)
				if cerr != nil {
					p.recordError(ctx, "group", name, cerr)
					cp.Campaign, cp.Group = c.Name, tier
					continue
				}
				id = created.ID
				byUpperName[strings.ToUpper(name)] = id
			}
			out = append(out, domain.Group{ID: id, GroupName: name, CampaignID: c.ID, Tier: tier})
			cp.Campaign, cp.Group = c.Name, tier
		}
	}

	if len(out) == 0 {
		return 0, nil
	}
	if err := p.repos.Groups.UpsertBulk(ctx, out); err != nil {
		return 0, fmt.Errorf("upsert groups: %w", err)
	}
	return len(out), nil
}

// batchSize returns the configured page/batch size, defaulting when unset.
func (p *Pipeline) batchSize() int {
	if p.cfg.Sync.SubscribersPerPage > 0 {
		return p.cfg.Sync.SubscribersPerPage
	}
	return 100
}

// inFlight returns the configured producer/consumer channel depth.
func (p *Pipeline) inFlight() int {
	if p.cfg.Sync.InFlightBatches > 0 {
		return p.cfg.Sync.InFlightBatches
	}
	return 4
}

type subscriberBatch struct {
	subscribers []domain.Subscriber
	cursor      string
	err         error
}

// validSubscribers splits subs into the subset with an RFC 5322 email
// address, routing the rest to the error queue instead of silently
// persisting a row a downstream system may reject.
func (p *Pipeline) validSubscribers(ctx context.Context, subs []domain.Subscriber) []domain.Subscriber {
	out := make([]domain.Subscriber, 0, len(subs))
	emailValidator := validators.EmailValidator{}
	for _, s := range subs {
		if issues := emailValidator.Validate(s.Email); validators.AnyRejected(issues) {
			p.recordError(ctx, "subscriber-email", s.ID, fmt.Errorf("%s", issues[0].Message))
			continue
		}
		out = append(out, s)
	}
	return out
}

// stageSyncSubscribers cursor-paginates every MLP subscriber, persisting
// each page as it arrives. Page fetches and persistence overlap through a
// bounded channel so the stage never holds more than inFlight() pages of
// subscribers in memory at once, matching the producer/consumer shape
// the teacher's campaign processor uses for its claim/process loop.
func (p *Pipeline) stageSyncSubscribers(ctx context.Context, cp *domain.ProgressCheckpoint) (int, error) {
	batches := make(chan subscriberBatch, p.inFlight())
	fetchCtx, cancelFetch := context.WithCancel(ctx)
	defer cancelFetch()

	go func() {
		defer close(batches)
		cursor := cp.Cursor
		for {
			if fetchCtx.Err() != nil {
				return
			}
			subs, next, err := p.mlp.ListSubscribersPage(fetchCtx, cursor, p.batchSize())
			if err != nil {
				batches <- subscriberBatch{err: err}
				return
			}
			batches <- subscriberBatch{subscribers: subs, cursor: next}
			if next == "" {
				return
			}
			cursor = next
		}
	}()

	total := 0
	for batch := range batches {
		if batch.err != nil {
			cancelFetch()
			return total, fmt.Errorf("fetch subscriber page: %w", batch.err)
		}
		if stopped, serr := p.store.IsStopped(ctx); serr == nil && stopped {
			cancelFetch()
			return total, nil
		}
		if len(batch.subscribers) > 0 {
			valid := p.validSubscribers(ctx, batch.subscribers)
			if len(valid) > 0 {
				if err := p.repos.Subscribers.UpsertBulk(ctx, valid); err != nil {
					cancelFetch()
					return total, fmt.Errorf("upsert subscribers: %w", err)
				}
			}
			total += len(valid)
		}
		cp.Cursor = batch.cursor
		if err := p.store.SaveCheckpoint(ctx, *cp); err != nil {
			logger.Error("save subscriber checkpoint failed", "error", err)
		}
	}
	return total, nil
}

// stageSyncMemberships enumerates every local group's upstream membership
// and reconciles per-campaign tier assignments, including the purchase
// id parsed from the campaign's purchase custom field.
func (p *Pipeline) stageSyncMemberships(ctx context.Context, cp *domain.ProgressCheckpoint) (int, error) {
	groups, err := p.repos.Groups.ListAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("list local groups: %w", err)
	}
	campaigns, err := p.repos.Campaigns.ListAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("list local campaigns: %w", err)
	}
	campaignByID := make(map[string]domain.Campaign, len(campaigns))
	for _, c := range campaigns {
		campaignByID[c.ID] = c
	}
	groupByCampaignTier := make(map[string]domain.Group, len(groups))
	for _, grp := range groups {
		groupByCampaignTier[grp.CampaignID+"|"+grp.Tier] = grp
	}

	resumingGroup := cp.Group != ""
	total := 0
	for _, g := range groups {
		if resumingGroup {
			if g.ID != cp.Group {
				continue
			}
			resumingGroup = false
		}
		campaign, ok := campaignByID[g.CampaignID]
		if !ok {
			continue
		}
		purchaseKey := purchaseFieldKey(campaign.Name)

		page := cp.NextPage
		if page == 0 {
			page = 1
		}
		for {
			if err := ctx.Err(); err != nil {
				return total, err
			}
			if stopped, serr := p.store.IsStopped(ctx); serr == nil && stopped {
				return total, nil
			}

			subs, hasMore, err := p.mlp.GetGroupSubscribers(ctx, g.ID, page)
			if err != nil {
				p.recordError(ctx, "membership-page", g.ID, err)
				break
			}

			if err := p.persistMembershipPage(ctx, g, campaign, groupByCampaignTier, subs, purchaseKey); err != nil {
				return total, fmt.Errorf("persist memberships for group %s: %w", g.ID, err)
			}
			total += len(subs)

			cp.Group = g.ID
			cp.NextPage = page + 1
			if err := p.store.SaveCheckpoint(ctx, *cp); err != nil {
				logger.Error("save membership checkpoint failed", "error", err)
			}

			if !hasMore {
				break
			}
			page++
		}
		cp.NextPage = 0
	}
	return total, nil
}

// persistMembershipPage upserts one page of a group's membership locally.
// Before writing, it gives each subscriber a chance to advance tier: DDS is
// asked whether the subscriber has purchased the campaign's product, the
// Tier Engine decides the subscriber's next tier from that signal, and a
// tier change is carried upstream (group move, purchase field) before the
// local row is written, so the local table never drifts from what MLP was
// told.
func (p *Pipeline) persistMembershipPage(ctx context.Context, g domain.Group, campaign domain.Campaign, groupByCampaignTier map[string]domain.Group, subs []domain.Subscriber, purchaseKey string) error {
	valid := p.validSubscribers(ctx, subs)
	if len(valid) == 0 {
		return nil
	}
	if err := p.repos.Subscribers.UpsertBulk(ctx, valid); err != nil {
		return fmt.Errorf("upsert subscribers: %w", err)
	}

	memberships := make([]domain.CampaignGroupSubscriber, 0, len(valid))
	for _, s := range valid {
		memberships = append(memberships, p.advanceSubscriberTier(ctx, g, campaign, groupByCampaignTier, s, purchaseKey))
	}
	return p.repos.Memberships.UpsertBulk(ctx, memberships)
}

// advanceSubscriberTier checks DDS purchase status for one subscriber,
// computes the Tier Engine's next tier, and moves the subscriber between
// MLP groups and updates its purchase field when the tier changes. It
// always returns the membership row that should be persisted locally,
// reflecting whichever group/tier the subscriber actually ended up in.
func (p *Pipeline) advanceSubscriberTier(ctx context.Context, g domain.Group, campaign domain.Campaign, groupByCampaignTier map[string]domain.Group, s domain.Subscriber, purchaseKey string) domain.CampaignGroupSubscriber {
	m := domain.CampaignGroupSubscriber{
		CampaignID:     g.CampaignID,
		SubscriberID:   s.ID,
		GroupID:        g.ID,
		SubscriberTier: g.Tier,
	}
	if val, ok := s.CustomFields[purchaseKey]; ok && val != "" {
		v := val
		m.PurchaseID = &v
	}

	if p.ddsClient == nil || campaign.ProductID == "" {
		return m
	}

	purchased, orderID, err := p.ddsClient.HasUserPurchased(ctx, s.ID, campaign.ProductID)
	if err != nil {
		logger.Error("dds purchase check failed", "subscriber", s.ID, "campaign", campaign.Name, "error", err)
		return m
	}

	nextTier := p.engine.NextTier(g.Tier, purchased)
	if nextTier == g.Tier {
		return m
	}

	dest, ok := groupByCampaignTier[g.CampaignID+"|"+nextTier]
	if !ok {
		logger.Warn("tier advancement target group missing", "campaign", campaign.Name, "tier", nextTier)
		return m
	}

	if err := p.mlp.RemoveFromGroup(ctx, s.ID, g.ID); err != nil {
		logger.Error("remove subscriber from group failed", "subscriber", s.ID, "group", g.ID, "error", err)
	}
	if err := p.mlp.AddToGroup(ctx, s.ID, dest.ID); err != nil {
		logger.Error("add subscriber to group failed", "subscriber", s.ID, "group", dest.ID, "error", err)
		return m
	}
	if orderID != "" {
		if err := p.mlp.UpdateSubscriberFields(ctx, s.ID, map[string]string{purchaseKey: orderID}); err != nil {
			logger.Error("update subscriber purchase field failed", "subscriber", s.ID, "error", err)
		} else {
			m.PurchaseID = &orderID
		}
	}
	m.GroupID = dest.ID
	m.SubscriberTier = nextTier
	return m
}
