package aggregator

import (
	"sort"
	"time"

	"aurelienallenic/api/models"
)

const dateLayout = "2006-01-02"

type visitorSet map[string]struct{}

func (v visitorSet) add(ids ...string) {
	for _, id := range ids {
		v[id] = struct{}{}
	}
}

func (v visitorSet) sorted() []string {
	out := make([]string, 0, len(v))
	for id := range v {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func addClicks(dst, src map[string]int64) {
	for label, n := range src {
		dst[label] += n
	}
}

// dayOf is the UTC calendar date of t.
func dayOf(t time.Time) string {
	return t.UTC().Format(dateLayout)
}

// groupByDay buckets events by the UTC date of createdAt and returns the
// dates in ascending order.
func groupByDay(events []models.RawEvent) ([]string, map[string][]models.RawEvent) {
	groups := make(map[string][]models.RawEvent)
	for _, e := range events {
		d := dayOf(e.CreatedAt)
		groups[d] = append(groups[d], e)
	}
	dates := make([]string, 0, len(groups))
	for d := range groups {
		dates = append(dates, d)
	}
	sort.Strings(dates)
	return dates, groups
}

// foldDay builds the summary of one day's events. Every event contributes its
// visitor; only PAGE_VIEW counts as a view and only labelled CLICKs count as clicks.
func foldDay(date string, events []models.RawEvent) models.DailySummary {
	visitors := visitorSet{}
	clicks := map[string]int64{}
	var views int64

	for _, e := range events {
		visitors.add(e.VisitorID)
		switch e.Type {
		case models.EventPageView:
			views++
		case models.EventClick:
			if e.Label != nil {
				clicks[*e.Label]++
			}
		}
	}

	ids := visitors.sorted()
	return models.DailySummary{
		Date:           date,
		PageViews:      views,
		Clicks:         clicks,
		UniqueVisitors: len(ids),
		VisitorIDs:     ids,
	}
}

// mergeDaily adds b into a. Neither input is modified.
func mergeDaily(a, b models.DailySummary) models.DailySummary {
	clicks := map[string]int64{}
	addClicks(clicks, a.Clicks)
	addClicks(clicks, b.Clicks)

	visitors := visitorSet{}
	visitors.add(a.VisitorIDs...)
	visitors.add(b.VisitorIDs...)
	ids := visitors.sorted()

	return models.DailySummary{
		Date:           a.Date,
		PageViews:      a.PageViews + b.PageViews,
		Clicks:         clicks,
		UniqueVisitors: len(ids),
		VisitorIDs:     ids,
	}
}

// mergeDailyStats merges two embedded day lists keyed by date, ordered by date.
func mergeDailyStats(existing, incoming []models.DailySummary) []models.DailySummary {
	byDate := make(map[string]models.DailySummary, len(existing)+len(incoming))
	for _, lists := range [][]models.DailySummary{existing, incoming} {
		for _, d := range lists {
			if prev, ok := byDate[d.Date]; ok {
				byDate[d.Date] = mergeDaily(prev, d)
				continue
			}
			byDate[d.Date] = mergeDaily(models.DailySummary{Date: d.Date}, d)
		}
	}

	out := make([]models.DailySummary, 0, len(byDate))
	for _, d := range byDate {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}

// monthFromDays computes monthly totals from the embedded days, so the
// sum and union invariants hold by construction.
func monthFromDays(year, month int, days []models.DailySummary) models.MonthlySummary {
	clicks := map[string]int64{}
	visitors := visitorSet{}
	var views int64
	for _, d := range days {
		views += d.PageViews
		addClicks(clicks, d.Clicks)
		visitors.add(d.VisitorIDs...)
	}
	ids := visitors.sorted()
	return models.MonthlySummary{
		Year:           year,
		Month:          month,
		PageViews:      views,
		Clicks:         clicks,
		UniqueVisitors: len(ids),
		VisitorIDs:     ids,
		DailyStats:     days,
	}
}

// mergeMonthlyStats merges two embedded month lists keyed by month. A month
// present in both gets its days merged and totals recomputed.
func mergeMonthlyStats(existing, incoming []models.MonthlySummary) []models.MonthlySummary {
	byMonth := make(map[int]models.MonthlySummary, len(existing)+len(incoming))
	for _, lists := range [][]models.MonthlySummary{existing, incoming} {
		for _, m := range lists {
			prev, ok := byMonth[m.Month]
			if !ok {
				byMonth[m.Month] = m
				continue
			}
			merged := monthFromDays(m.Year, m.Month, mergeDailyStats(prev.DailyStats, m.DailyStats))
			merged.CreatedAt = prev.CreatedAt
			merged.UpdatedAt = m.UpdatedAt
			byMonth[m.Month] = merged
		}
	}

	out := make([]models.MonthlySummary, 0, len(byMonth))
	for _, m := range byMonth {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month < out[j].Month })
	return out
}

func yearFromMonths(year int, months []models.MonthlySummary) models.YearlySummary {
	clicks := map[string]int64{}
	visitors := visitorSet{}
	var views int64
	for _, m := range months {
		views += m.PageViews
		addClicks(clicks, m.Clicks)
		visitors.add(m.VisitorIDs...)
	}
	ids := visitors.sorted()
	return models.YearlySummary{
		Year:           year,
		PageViews:      views,
		Clicks:         clicks,
		UniqueVisitors: len(ids),
		VisitorIDs:     ids,
		MonthlyStats:   months,
	}
}
