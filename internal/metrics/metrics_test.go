package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorders(t *testing.T) {
	reg := prometheus.NewRegistry()
	Register(reg)

	before := testutil.ToFloat64(transferCounter.WithLabelValues("done"))
	RecordTransfer("done", 3*time.Second)
	assert.Equal(t, before+1, testutil.ToFloat64(transferCounter.WithLabelValues("done")))

	rejected := testutil.ToFloat64(rejectionCounter)
	RecordRejection()
	assert.Equal(t, rejected+1, testutil.ToFloat64(rejectionCounter))

	SetActive(2)
	assert.Equal(t, 2.0, testutil.ToFloat64(activeGauge))

	ObserveLoss(10, 4, 6)
	assert.Equal(t, 4.0, testutil.ToFloat64(lossGauge.WithLabelValues("content")))

	submitted := testutil.ToFloat64(submissionCounter.WithLabelValues("CONTENT_ASSIGNED"))
	RecordSubmission("CONTENT_ASSIGNED")
	assert.Equal(t, submitted+1, testutil.ToFloat64(submissionCounter.WithLabelValues("CONTENT_ASSIGNED")))

	srv := httptest.NewServer(Handler(reg))
	defer srv.Close()

	res, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, string(body), "nstbot_transfers_total")
	assert.Contains(t, string(body), "nstbot_active_transfers 2")
}
