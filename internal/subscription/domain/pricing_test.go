package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dukahub/dukahub/internal/config"
)

func testPricing() config.PricingConfig {
	return config.PricingConfig{
		MonthlyBase:          2000,
		SemiAnnualMultiplier: 5,
		AnnualMultiplier:     10,
		AdditionalBranchRate: 0.8,
	}
}

func TestBase(t *testing.T) {
	cfg := testPricing()

	assert.Equal(t, int64(2000), Base(cfg, CycleMonthly))
	assert.Equal(t, int64(10000), Base(cfg, CycleSemiAnnual))
	assert.Equal(t, int64(20000), Base(cfg, CycleAnnual))
}

func TestPerBranch(t *testing.T) {
	cfg := testPricing()

	assert.Equal(t, int64(1600), PerBranch(cfg, CycleMonthly))
	assert.Equal(t, int64(8000), PerBranch(cfg, CycleSemiAnnual))
	assert.Equal(t, int64(16000), PerBranch(cfg, CycleAnnual))
}

func TestPrice(t *testing.T) {
	cfg := testPricing()

	tests := []struct {
		name      string
		cycle     BillingCycle
		locations int
		want      int64
	}{
		{"main location only", CycleMonthly, 1, 2000},
		{"main plus one branch", CycleMonthly, 2, 3600},
		{"main plus two branches", CycleMonthly, 3, 5200},
		{"zero falls back to base", CycleMonthly, 0, 2000},
		{"annual with branches", CycleAnnual, 3, 52000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Price(cfg, tt.cycle, tt.locations))
		})
	}
}

func TestProrata(t *testing.T) {
	tests := []struct {
		name          string
		perBranch     int64
		remainingDays int
		periodDays    int
		want          int64
	}{
		{"two thirds of the period remain", 1600, 20, 30, 1067},
		{"full period", 1600, 30, 30, 1600},
		{"one day", 1600, 1, 30, 53},
		{"remaining clamped to the period", 1600, 40, 30, 1600},
		{"nothing remains", 1600, 0, 30, 0},
		{"degenerate period", 1600, 10, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Prorata(tt.perBranch, tt.remainingDays, tt.periodDays))
		})
	}
}

func TestCycleEnd(t *testing.T) {
	start := time.Date(2026, time.January, 15, 9, 0, 0, 0, time.UTC)

	assert.Equal(t, time.Date(2026, time.February, 15, 9, 0, 0, 0, time.UTC), CycleEnd(start, CycleMonthly))
	assert.Equal(t, time.Date(2026, time.July, 15, 9, 0, 0, 0, time.UTC), CycleEnd(start, CycleSemiAnnual))
	assert.Equal(t, time.Date(2027, time.January, 15, 9, 0, 0, 0, time.UTC), CycleEnd(start, CycleAnnual))
}

func TestBillingCycleValid(t *testing.T) {
	assert.True(t, CycleMonthly.Valid())
	assert.True(t, CycleSemiAnnual.Valid())
	assert.True(t, CycleAnnual.Valid())
	assert.False(t, BillingCycle("weekly").Valid())
	assert.False(t, BillingCycle("").Valid())
}
