package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecorder(t *testing.T) {
	r := NewRecorder(prometheus.NewRegistry(), "test")

	r.RecordTransition("razorpay", "initiated", "processor-confirmed")
	r.RecordTransition("razorpay", "initiated", "processor-confirmed")
	r.RecordTransition("admin", "", "reconciled")
	r.RecordDecision(true)
	r.RecordDecision(false)
	r.RecordDecision(false)
	r.RecordReconcile("activated", 3)
	r.RecordReconcile("failed", 0)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.transitions.WithLabelValues("razorpay", "initiated", "processor-confirmed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.transitions.WithLabelValues("admin", "none", "reconciled")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.decisions.WithLabelValues("true")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.decisions.WithLabelValues("false")))
	assert.Equal(t, 3.0, testutil.ToFloat64(r.reconciles.WithLabelValues("activated")))
	assert.Equal(t, 1, testutil.CollectAndCount(r.reconciles), "zero counts are not recorded")
}
