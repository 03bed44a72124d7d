package anomaly

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/septivank/water-meter-agent/internal/models"
)

// Detector flags consumption spikes against recent approved history
type Detector struct {
	spikeThreshold            decimal.Decimal
	minDataPointsForDetection int
}

// NewDetector creates a new spike detector with the specified thresholds
func NewDetector(spikeThreshold float64, minDataPointsForDetection int) *Detector {
	return &Detector{
		spikeThreshold:            decimal.NewFromFloat(spikeThreshold),
		minDataPointsForDetection: minDataPointsForDetection,
	}
}

// DetectSpike reports whether consumption exceeds threshold x the historical average.
// A spike is a warning for the agent, never a reason to refuse the reading.
func (d *Detector) DetectSpike(consumption decimal.Decimal, history []decimal.Decimal) (bool, string) {
	if len(history) == 0 || len(history) < d.minDataPointsForDetection {
		return false, ""
	}

	sum := decimal.Zero
	for _, v := range history {
		sum = sum.Add(v)
	}
	average := sum.Div(decimal.NewFromInt(int64(len(history))))

	if average.IsPositive() && consumption.GreaterThan(d.spikeThreshold.Mul(average)) {
		return true, fmt.Sprintf("consumption %s exceeds %sx the recent average of %s",
			consumption.String(), d.spikeThreshold.String(), average.StringFixed(2))
	}

	return false, ""
}

// ApprovedConsumptions collects the consumption of up to limit approved readings.
// readings must already be ordered newest first.
func ApprovedConsumptions(readings []models.MeterReading, limit int) []decimal.Decimal {
	var values []decimal.Decimal
	for _, r := range readings {
		if len(values) == limit {
			break
		}
		if r.Status != models.StatusApproved || r.AccessReason == models.AccessReasonDoorClosed {
			continue
		}
		values = append(values, r.Consumption)
	}
	return values
}
