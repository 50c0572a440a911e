package domain

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/dukahub/dukahub/internal/config"
)

// Base is the cycle price for the main location alone, in minor units.
func Base(cfg config.PricingConfig, cycle BillingCycle) int64 {
	switch cycle {
	case CycleSemiAnnual:
		return cfg.MonthlyBase * cfg.SemiAnnualMultiplier
	case CycleAnnual:
		return cfg.MonthlyBase * cfg.AnnualMultiplier
	default:
		return cfg.MonthlyBase
	}
}

// PerBranch is the discounted price each location beyond the first
// pays for the cycle.
func PerBranch(cfg config.PricingConfig, cycle BillingCycle) int64 {
	return decimal.NewFromInt(Base(cfg, cycle)).
		Mul(decimal.NewFromFloat(cfg.AdditionalBranchRate)).
		Round(0).IntPart()
}

// Price is the full cycle price for locationCount locations, the main
// one at base and every additional one at the discounted rate.
func Price(cfg config.PricingConfig, cycle BillingCycle, locationCount int) int64 {
	base := Base(cfg, cycle)
	if locationCount <= 1 {
		return base
	}
	return base + int64(locationCount-1)*PerBranch(cfg, cycle)
}

// Prorata charges a branch added mid-cycle only for the remaining part
// of the period, rounded to the nearest minor unit.
func Prorata(perBranch int64, remainingDays, periodDays int) int64 {
	if periodDays <= 0 || remainingDays <= 0 {
		return 0
	}
	if remainingDays > periodDays {
		remainingDays = periodDays
	}
	return decimal.NewFromInt(perBranch).
		Mul(decimal.NewFromInt(int64(remainingDays))).
		Div(decimal.NewFromInt(int64(periodDays))).
		Round(0).IntPart()
}

// CycleEnd is the end of a period starting at start.
func CycleEnd(start time.Time, cycle BillingCycle) time.Time {
	return start.AddDate(0, cycle.Months(), 0)
}
