package file

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/wastorga/sim/pkg/models"
)

// DeliveryRepository stores delivery records under deliveries/<id>.json.
type DeliveryRepository struct {
	p *Persistence
}

func (r *DeliveryRepository) Record(_ context.Context, record *models.DeliveryRecord) error {
	return writeJSON(r.p.path("deliveries", record.ID+".json"), record)
}

func (r *DeliveryRepository) ListByConfig(_ context.Context, configID string, limit int) ([]*models.DeliveryRecord, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	all, err := r.all()
	if err != nil {
		return nil, err
	}

	records := make([]*models.DeliveryRecord, 0)

	for _, record := range all {
		if record.ConfigID == configID {
			records = append(records, record)
		}
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].DeliveredAt.After(records[j].DeliveredAt)
	})

	if len(records) > limit {
		records = records[:limit]
	}

	return records, nil
}

func (r *DeliveryRepository) PruneBefore(_ context.Context, cutoff time.Time) (int64, error) {
	all, err := r.all()
	if err != nil {
		return 0, err
	}

	var removed int64

	for _, record := range all {
		if record.DeliveredAt.Before(cutoff) {
			err := removeFile(r.p.path("deliveries", record.ID+".json"))
			if err != nil {
				return removed, err
			}

			removed++
		}
	}

	return removed, nil
}

func (r *DeliveryRepository) all() ([]*models.DeliveryRecord, error) {
	files, err := listJSON(r.p.path("deliveries"))
	if err != nil {
		return nil, err
	}

	records := make([]*models.DeliveryRecord, 0, len(files))

	for _, file := range files {
		var record models.DeliveryRecord

		found, err := readJSON(file, &record)
		if err != nil {
			return nil, err
		}

		if found {
			records = append(records, &record)
		}
	}

	return records, nil
}

// SubscriptionRepository keeps every subscription in subscriptions.json.
type SubscriptionRepository struct {
	p *Persistence
}

func (r *SubscriptionRepository) ListByReference(_ context.Context, referenceID string) ([]*models.Subscription, error) {
	var all []*models.Subscription

	_, err := readJSON(r.p.path("subscriptions.json"), &all)
	if err != nil {
		return nil, err
	}

	subs := make([]*models.Subscription, 0)

	for _, sub := range all {
		if sub.ReferenceID == referenceID {
			subs = append(subs, sub)
		}
	}

	return subs, nil
}

// Save appends or replaces a subscription by id.
func (r *SubscriptionRepository) Save(_ context.Context, sub *models.Subscription) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	var all []*models.Subscription

	_, err := readJSON(r.p.path("subscriptions.json"), &all)
	if err != nil {
		return err
	}

	replaced := false

	for i, existing := range all {
		if existing.ID == sub.ID {
			all[i] = sub
			replaced = true
		}
	}

	if !replaced {
		all = append(all, sub)
	}

	return writeJSON(r.p.path("subscriptions.json"), all)
}

// UsageRepository keeps current-period cost per user in usage.json.
type UsageRepository struct {
	p *Persistence
}

func (r *UsageRepository) CurrentPeriodCost(_ context.Context, userID string) (float64, error) {
	costs := map[string]float64{}

	_, err := readJSON(r.p.path("usage.json"), &costs)
	if err != nil {
		return 0, fmt.Errorf("failed to read usage: %w", err)
	}

	return costs[userID], nil
}

func (r *UsageRepository) SetCurrentPeriodCost(_ context.Context, userID string, cost float64) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	costs := map[string]float64{}

	_, err := readJSON(r.p.path("usage.json"), &costs)
	if err != nil {
		return err
	}

	costs[userID] = cost

	return writeJSON(r.p.path("usage.json"), costs)
}
