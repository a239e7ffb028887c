package negotiation

import (
	"encoding/json"
	"strconv"
)

// Ratio is a derived metric that may be not applicable, for instance when
// its denominator is zero or unset. A not-applicable Ratio encodes as null.
type Ratio struct {
	Value float64
	Valid bool
}

// NotApplicable is the sentinel for metrics without a usable denominator.
var NotApplicable = Ratio{}

func ratio(v float64) Ratio { return Ratio{Value: v, Valid: true} }

func (r Ratio) MarshalJSON() ([]byte, error) {
	if !r.Valid {
		return []byte("null"), nil
	}
	return []byte(strconv.FormatFloat(r.Value, 'f', -1, 64)), nil
}

func (r *Ratio) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*r = NotApplicable
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*r = ratio(v)
	return nil
}

// TKP is the cost per 1000 views in major currency units.
func TKP(totalViews, agreedAmountCents int64) Ratio {
	if totalViews <= 0 || agreedAmountCents <= 0 {
		return NotApplicable
	}
	return ratio(float64(agreedAmountCents) / 100 / float64(totalViews) * 1000)
}

// ROAS is revenue divided by spend.
func ROAS(totalRevenueCents, agreedAmountCents int64) Ratio {
	if agreedAmountCents <= 0 {
		return NotApplicable
	}
	return ratio(float64(totalRevenueCents) / float64(agreedAmountCents))
}

// CTR is the click-through rate in percent; zero without views.
func CTR(totalClicks, totalViews int64) Ratio {
	if totalViews <= 0 {
		return ratio(0)
	}
	return ratio(float64(totalClicks) / float64(totalViews) * 100)
}

// BudgetUtilization is actual cost as a percentage of budget.
func BudgetUtilization(actualCostCents, budgetCents int64) Ratio {
	if budgetCents <= 0 {
		return NotApplicable
	}
	return ratio(float64(actualCostCents) / float64(budgetCents) * 100)
}

// ViewsAchievement is actual views as a percentage of the view target.
func ViewsAchievement(actualViews, targetViews int64) Ratio {
	if targetViews <= 0 {
		return NotApplicable
	}
	return ratio(float64(actualViews) / float64(targetViews) * 100)
}

// Metrics is the derived performance summary of one engagement
type Metrics struct {
	TKP               Ratio   `json:"tkp"`
	ROAS              Ratio   `json:"roas"`
	CTR               Ratio   `json:"ctr"`
	BudgetUtilization Ratio   `json:"budget_utilization"`
	ViewsAchievement  Ratio   `json:"views_achievement"`
	TotalViews        int64   `json:"total_views"`
	TotalClicks       int64   `json:"total_clicks"`
	TotalRevenueCents int64   `json:"total_revenue_cents"`
	AvgEngagementRate float64 `json:"avg_engagement_rate"`
}

// ComputeMetrics derives the metrics of rec from its final snapshot totals.
// Actual cost falls back to the agreed total when no cost was booked.
func ComputeMetrics(rec Record, t Totals) Metrics {
	agreed := deref(rec.AgreedTotalCents)
	actualCost := agreed
	if rec.ActualCostCents != nil {
		actualCost = *rec.ActualCostCents
	}

	return Metrics{
		TKP:               TKP(t.Views, agreed),
		ROAS:              ROAS(t.RevenueCents, agreed),
		CTR:               CTR(t.Clicks, t.Views),
		BudgetUtilization: BudgetUtilization(actualCost, deref(rec.BudgetCents)),
		ViewsAchievement:  ViewsAchievement(t.Views, deref(rec.TargetViews)),
		TotalViews:        t.Views,
		TotalClicks:       t.Clicks,
		TotalRevenueCents: t.RevenueCents,
		AvgEngagementRate: t.AvgEngagementRate,
	}
}

func deref(v *int64) int64 {
	if v == nil {
		return 0
	}
	return *v
}
