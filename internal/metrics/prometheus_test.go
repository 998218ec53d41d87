package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
)

func getCounterValue(c prometheus.Counter) float64 {
	m := &dto.Metric{}
	c.Write(m)
	return m.GetCounter().GetValue()
}

func getHistogramCount(h prometheus.Observer) uint64 {
	hist, ok := h.(prometheus.Metric)
	if !ok {
		return 0
	}
	m := &dto.Metric{}
	hist.Write(m)
	return m.GetHistogram().GetSampleCount()
}

func TestMergesStarted(t *testing.T) {
	before := getCounterValue(MergesStarted.WithLabelValues("device-a"))
	MergesStarted.WithLabelValues("device-a").Inc()
	after := getCounterValue(MergesStarted.WithLabelValues("device-a"))
	assert.Equal(t, before+1, after)
}

func TestRecordMergeAborted(t *testing.T) {
	before := getCounterValue(MergesAborted.WithLabelValues("device-b", "merge-fail"))
	RecordMergeAborted("device-b", "merge-fail")
	after := getCounterValue(MergesAborted.WithLabelValues("device-b", "merge-fail"))
	assert.Equal(t, before+1, after)
}

func TestRecordMergeSucceeded(t *testing.T) {
	beforeCount := getHistogramCount(MergeDuration.WithLabelValues("device-c"))
	beforeTotal := getCounterValue(MergesSucceeded.WithLabelValues("device-c"))

	RecordMergeSucceeded("device-c", 2*time.Second)

	assert.Equal(t, beforeTotal+1, getCounterValue(MergesSucceeded.WithLabelValues("device-c")))
	assert.Equal(t, beforeCount+1, getHistogramCount(MergeDuration.WithLabelValues("device-c")))
}

func TestRecordUpload(t *testing.T) {
	before := getHistogramCount(UploadDuration.WithLabelValues("device-d", "audio"))
	RecordUpload("device-d", "audio", 500*time.Millisecond)
	after := getHistogramCount(UploadDuration.WithLabelValues("device-d", "audio"))
	assert.Equal(t, before+1, after)
}
