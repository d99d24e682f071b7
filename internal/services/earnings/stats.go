package earnings

import (
	"gonum.org/v1/gonum/stat"

	"github.com/mileslinfeng/MilesRI/internal/common"
	"github.com/mileslinfeng/MilesRI/internal/models"
)

// ComputeStats summarises the surprise distribution of a history. BeatRate
// and MeanSurprise cover quarters that carry a surprise; StdDevSurprise
// needs at least two of them.
func ComputeStats(rows []models.HistoryRow) *models.HistoryStats {
	stats := &models.HistoryStats{Quarters: len(rows)}

	surprises := make([]float64, 0, len(rows))
	for _, r := range rows {
		switch r.SignalCode {
		case models.SignalBeat:
			stats.Beats++
		case models.SignalStable:
			stats.Stable++
		case models.SignalMiss:
			stats.Misses++
		default:
			stats.Neutral++
		}
		if r.Surprise != nil {
			surprises = append(surprises, *r.Surprise)
		}
	}

	if len(surprises) == 0 {
		return stats
	}

	rate := common.Round4(float64(stats.Beats) / float64(len(surprises)))
	stats.BeatRate = &rate

	mean := common.Round4(stat.Mean(surprises, nil))
	stats.MeanSurprise = &mean

	if len(surprises) >= 2 {
		sd := common.Round4(stat.StdDev(surprises, nil))
		stats.StdDevSurprise = &sd
	}
	return stats
}
