package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRegisterIsIdempotent(t *testing.T) {
	assert.NotPanics(t, func() {
		Register()
		Register()
	})
}

func TestGaugesAndCounters(t *testing.T) {
	SetSlots(2, 1)
	assert.Equal(t, 2.0, testutil.ToFloat64(slots.WithLabelValues("free")))
	assert.Equal(t, 1.0, testutil.ToFloat64(slots.WithLabelValues("occupied")))

	SetSensorDegraded(true)
	assert.Equal(t, 1.0, testutil.ToFloat64(sensorDegraded))
	SetSensorDegraded(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(sensorDegraded))

	before := testutil.ToFloat64(revenue)
	ObserveCheckOut(0)
	ObserveCheckOut(50)
	assert.Equal(t, before+50, testutil.ToFloat64(revenue))

	before = testutil.ToFloat64(checkIns.WithLabelValues("ok"))
	IncCheckIn("ok")
	assert.Equal(t, before+1, testutil.ToFloat64(checkIns.WithLabelValues("ok")))
}
