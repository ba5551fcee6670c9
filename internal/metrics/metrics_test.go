package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveOperation(t *testing.T) {
	before := testutil.ToFloat64(OperationsTotal.WithLabelValues("metrics_test", "error"))
	ObserveOperation("metrics_test", time.Now(), errors.New("boom"))
	ObserveOperation("metrics_test", time.Now(), nil)

	assert.Equal(t, before+1, testutil.ToFloat64(OperationsTotal.WithLabelValues("metrics_test", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(OperationsTotal.WithLabelValues("metrics_test", "ok")))
}

func TestResult(t *testing.T) {
	assert.Equal(t, "ok", Result(nil))
	assert.Equal(t, "error", Result(errors.New("x")))
}
