package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// SlotOffer is one bookable slot plus the window context a patient needs
// to choose it.
type SlotOffer struct {
	Slot        Slot
	Location    Location
	Pricing     Pricing
	SpecialReqs []string
}

// ProviderOffers groups a provider's open slots in a search result.
type ProviderOffers struct {
	Provider *Provider
	Slots    []SlotOffer
}

// SearchResults is the patient-facing discovery projection.
type SearchResults struct {
	TotalWindows int
	Results      []ProviderOffers
}

// SearchService serves read-only discovery over availability and slots.
// It may observe slightly stale state; the booking path re-reads
// authoritative state, so staleness here can never double-book.
type SearchService struct {
	repo             Repository
	dir              Directory
	clock            Clock
	defaultRangeDays int
	limit            int
	log              zerolog.Logger
}

func NewSearchService(repo Repository, dir Directory, clock Clock, defaultRangeDays, limit int, log zerolog.Logger) *SearchService {
	if clock == nil {
		clock = SystemClock()
	}
	if defaultRangeDays <= 0 {
		defaultRangeDays = 30
	}
	if limit <= 0 {
		limit = 50
	}
	return &SearchService{
		repo:             repo,
		dir:              dir,
		clock:            clock,
		defaultRangeDays: defaultRangeDays,
		limit:            limit,
		log:              log,
	}
}

// Search finds open windows matching the criteria and returns their
// still-AVAILABLE slots grouped by provider. An unspecified date range
// defaults to today through today plus the configured window.
func (s *SearchService) Search(ctx context.Context, q SearchQuery) (*SearchResults, error) {
	if q.StartDate.IsZero() || q.EndDate.IsZero() {
		today := s.clock.Now().UTC().Truncate(24 * time.Hour)
		q.StartDate = today
		q.EndDate = today.AddDate(0, 0, s.defaultRangeDays)
	}
	if q.Limit <= 0 || q.Limit > s.limit {
		q.Limit = s.limit
	}

	windows, err := s.repo.SearchOpenWindows(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("search windows: %w", err)
	}

	results := &SearchResults{TotalWindows: len(windows)}

	byProvider := make(map[uuid.UUID]int)
	for i := range windows {
		w := &windows[i]

		slots, err := s.repo.ListSlotsByWindow(ctx, w.ID)
		if err != nil {
			return nil, fmt.Errorf("list slots for window %s: %w", w.ID, err)
		}

		var offers []SlotOffer
		for _, slot := range slots {
			if slot.Status != SlotAvailable {
				continue
			}
			offers = append(offers, SlotOffer{
				Slot:        slot,
				Location:    w.Location,
				Pricing:     w.Pricing,
				SpecialReqs: w.SpecialReqs,
			})
		}
		if len(offers) == 0 {
			continue
		}

		idx, seen := byProvider[w.ProviderID]
		if !seen {
			provider, err := s.dir.ResolveProvider(ctx, w.ProviderID)
			if err != nil {
				return nil, fmt.Errorf("resolve provider %s: %w", w.ProviderID, err)
			}
			results.Results = append(results.Results, ProviderOffers{Provider: provider})
			idx = len(results.Results) - 1
			byProvider[w.ProviderID] = idx
		}
		results.Results[idx].Slots = append(results.Results[idx].Slots, offers...)
	}

	return results, nil
}
