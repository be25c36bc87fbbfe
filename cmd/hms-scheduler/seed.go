package main

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/ehr/hms-scheduler/internal/domain/registry"
	"github.com/ehr/hms-scheduler/pkg/pagination"
)

// Wards used by the standard layout.
const (
	seedGeneralWard = 1
	seedICUWard     = 2
	seedOTWard      = 10
)

// seedPlan is how many resources to create per ward.
type seedPlan struct {
	General int
	ICU     int
	OT      int
}

func defaultSeedPlan() seedPlan {
	return seedPlan{General: 20, ICU: 6, OT: 3}
}

type seedResult struct {
	Created int
	Skipped int
}

// seedResources creates beds and operating rooms numbered from 1 in each
// ward. Ward/number pairs that already exist are left alone, so seeding is
// repeatable.
func seedResources(ctx context.Context, svc *registry.Service, plan seedPlan) (seedResult, error) {
	var res seedResult
	layout := []struct {
		ward  int
		count int
		typ   registry.ResourceType
	}{
		{seedGeneralWard, plan.General, registry.TypeGeneral},
		{seedICUWard, plan.ICU, registry.TypeICU},
		{seedOTWard, plan.OT, registry.TypeOT},
	}

	for _, l := range layout {
		if l.count <= 0 {
			continue
		}
		taken, err := wardNumbers(ctx, svc, l.ward)
		if err != nil {
			return res, err
		}

		for n := 1; n <= l.count; n++ {
			if taken[n] {
				res.Skipped++
				continue
			}
			r := &registry.Resource{Ward: l.ward, Number: n, Type: l.typ}
			if err := svc.Create(ctx, r); err != nil {
				return res, err
			}
			res.Created++
		}
		zerolog.Ctx(ctx).Info().Int("ward", l.ward).Str("type", string(l.typ)).Int("count", l.count).Msg("ward seeded")
	}
	return res, nil
}

// wardNumbers returns the resource numbers already used in ward.
func wardNumbers(ctx context.Context, svc *registry.Service, ward int) (map[int]bool, error) {
	taken := make(map[int]bool)
	for offset := 0; ; offset += pagination.MaxLimit {
		page, total, err := svc.List(ctx, registry.Filter{Ward: &ward}, pagination.MaxLimit, offset)
		if err != nil {
			return nil, err
		}
		for _, r := range page {
			taken[r.Number] = true
		}
		if offset+len(page) >= total || len(page) == 0 {
			return taken, nil
		}
	}
}
