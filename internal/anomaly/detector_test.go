package anomaly_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/septivank/water-meter-agent/internal/anomaly"
	"github.com/septivank/water-meter-agent/internal/models"
)

const (
	testSpikeThreshold            = 3.0
	testMinDataPointsForDetection = 3
)

func decimals(values ...int64) []decimal.Decimal {
	out := make([]decimal.Decimal, len(values))
	for i, v := range values {
		out[i] = decimal.NewFromInt(v)
	}
	return out
}

func TestDetectSpike_SuddenSpike(t *testing.T) {
	detector := anomaly.NewDetector(testSpikeThreshold, testMinDataPointsForDetection)

	isSpike, reason := detector.DetectSpike(decimal.NewFromInt(70), decimals(20, 21, 19, 20))

	assert.True(t, isSpike)
	assert.Contains(t, reason, "recent average of 20.00")
}

func TestDetectSpike_NormalValue(t *testing.T) {
	detector := anomaly.NewDetector(testSpikeThreshold, testMinDataPointsForDetection)

	isSpike, reason := detector.DetectSpike(decimal.NewFromInt(25), decimals(20, 21, 19, 20))

	assert.False(t, isSpike, reason)
}

func TestDetectSpike_InsufficientData(t *testing.T) {
	detector := anomaly.NewDetector(testSpikeThreshold, testMinDataPointsForDetection)

	isSpike, _ := detector.DetectSpike(decimal.NewFromInt(500), decimals(10, 12))

	assert.False(t, isSpike)
}

func TestDetectSpike_ZeroAverage(t *testing.T) {
	detector := anomaly.NewDetector(testSpikeThreshold, testMinDataPointsForDetection)

	isSpike, _ := detector.DetectSpike(decimal.NewFromInt(5), decimals(0, 0, 0))

	assert.False(t, isSpike)
}

func TestApprovedConsumptions(t *testing.T) {
	readings := []models.MeterReading{
		{ID: "5", Status: models.StatusPending, Consumption: decimal.NewFromInt(99)},
		{ID: "4", Status: models.StatusApproved, Consumption: decimal.NewFromInt(20)},
		{ID: "3", Status: models.StatusApproved, AccessReason: models.AccessReasonDoorClosed},
		{ID: "2", Status: models.StatusRejected, Consumption: decimal.NewFromInt(400)},
		{ID: "1", Status: models.StatusApproved, Consumption: decimal.NewFromInt(18)},
		{ID: "0", Status: models.StatusApproved, Consumption: decimal.NewFromInt(17)},
	}

	values := anomaly.ApprovedConsumptions(readings, 2)

	assert.Len(t, values, 2)
	assert.True(t, values[0].Equal(decimal.NewFromInt(20)))
	assert.True(t, values[1].Equal(decimal.NewFromInt(18)))
}
