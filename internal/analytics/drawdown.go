package analytics

import (
	"github.com/apershukov/allocator/pkg/models"
)

// drawdowns decomposes drawdown risk per sleeve and for the allocation
// weighted portfolio. Sleeves whose selections have no usable history are
// skipped; the portfolio stats need at least one contributing sleeve.
func (a *Analyzer) drawdowns(
	results map[models.Sleeve]models.SleeveResult,
	allocation models.AllocationVector,
	series map[string]returnSeries,
) *models.DrawdownReport {
	report := &models.DrawdownReport{BySleeve: map[models.Sleeve]models.DrawdownStats{}}

	sleeveSeries := map[models.Sleeve]returnSeries{}
	for _, sleeve := range models.AllSleeves {
		result, ok := results[sleeve]
		if !ok || len(result.Selected) == 0 {
			continue
		}
		s, ok := equalWeightSeries(result.Symbols(), series)
		if !ok {
			continue
		}
		sleeveSeries[sleeve] = s
		report.BySleeve[sleeve] = drawdownStats(s)
	}
	if len(report.BySleeve) == 0 {
		return nil
	}

	if portfolio, ok := weightedSeries(sleeveSeries, allocation); ok {
		stats := drawdownStats(portfolio)
		report.Portfolio = &stats
	}
	return report
}

// equalWeightSeries averages the member return series, trimmed to the
// shortest member from the end. Dates come from the first member.
func equalWeightSeries(symbols []string, series map[string]returnSeries) (returnSeries, bool) {
	var members []returnSeries
	minLen := -1
	for _, sym := range symbols {
		s, ok := series[sym]
		if !ok || len(s.returns) == 0 {
			continue
		}
		members = append(members, s)
		if minLen < 0 || len(s.returns) < minLen {
			minLen = len(s.returns)
		}
	}
	if len(members) == 0 {
		return returnSeries{}, false
	}

	out := returnSeries{
		dates:   make([]string, minLen),
		returns: make([]float64, minLen),
	}
	copy(out.dates, members[0].dates[len(members[0].dates)-minLen:])
	for _, m := range members {
		rets := m.returns[len(m.returns)-minLen:]
		for i, r := range rets {
			out.returns[i] += r / float64(len(members))
		}
	}
	return out, true
}

// weightedSeries combines sleeve series using the regime allocation.
// Only sleeves with positive weight and data contribute; weights are
// renormalized over the contributors.
func weightedSeries(sleeveSeries map[models.Sleeve]returnSeries, allocation models.AllocationVector) (returnSeries, bool) {
	type contributor struct {
		s returnSeries
		w float64
	}
	var contributors []contributor
	totalWeight := 0.0
	minLen := -1
	for _, sleeve := range models.AllSleeves {
		s, ok := sleeveSeries[sleeve]
		if !ok {
			continue
		}
		w := allocation[sleeve]
		if w <= 0 {
			continue
		}
		contributors = append(contributors, contributor{s: s, w: w})
		totalWeight += w
		if minLen < 0 || len(s.returns) < minLen {
			minLen = len(s.returns)
		}
	}
	if len(contributors) == 0 || totalWeight <= 0 {
		return returnSeries{}, false
	}

	out := returnSeries{
		dates:   make([]string, minLen),
		returns: make([]float64, minLen),
	}
	copy(out.dates, contributors[0].s.dates[len(contributors[0].s.dates)-minLen:])
	for _, c := range contributors {
		rets := c.s.returns[len(c.s.returns)-minLen:]
		for i, r := range rets {
			out.returns[i] += r * c.w / totalWeight
		}
	}
	return out, true
}

// drawdownStats walks the wealth curve of a return series. The worst
// trough over the full history anchors the peak/trough dates and the
// recovery count; recovery stays nil while wealth has not regained the
// prior peak.
func drawdownStats(s returnSeries) models.DrawdownStats {
	n := len(s.returns)
	wealth := make([]float64, n)
	peak := make([]float64, n)
	dd := make([]float64, n)

	w := 1.0
	p := 0.0
	peakIdx := make([]int, n)
	lastPeakIdx := 0
	for i, r := range s.returns {
		w *= 1 + r
		wealth[i] = w
		if w > p {
			p = w
			lastPeakIdx = i
		}
		peak[i] = p
		peakIdx[i] = lastPeakIdx
		dd[i] = w/p - 1
	}

	stats := models.DrawdownStats{
		MaxDrawdown6Mo:  minTail(dd, 126),
		MaxDrawdown1Yr:  minTail(dd, 252),
		CurrentDrawdown: dd[n-1],
	}

	// Worst trough over the full history.
	troughIdx := 0
	for i := 1; i < n; i++ {
		if dd[i] < dd[troughIdx] {
			troughIdx = i
		}
	}
	if dd[troughIdx] < 0 {
		stats.PeakDate = s.dates[peakIdx[troughIdx]]
		stats.TroughDate = s.dates[troughIdx]
		peakValue := peak[troughIdx]
		for i := troughIdx + 1; i < n; i++ {
			if wealth[i] >= peakValue {
				days := i - troughIdx
				stats.RecoveryDays = &days
				break
			}
		}
	}
	return stats
}

// minTail is the minimum over the trailing n values, or the whole series
// when shorter.
func minTail(values []float64, n int) float64 {
	start := len(values) - n
	if start < 0 {
		start = 0
	}
	min := values[start]
	for _, v := range values[start+1:] {
		if v < min {
			min = v
		}
	}
	return min
}
