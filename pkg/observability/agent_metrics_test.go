package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordAuthAttempt(t *testing.T) {
	before := testutil.ToFloat64(authAttemptsTotal.WithLabelValues(ResultFailure))

	RecordAuthAttempt(ResultFailure)
	RecordAuthAttempt(ResultFailure)

	assert.Equal(t, before+2, testutil.ToFloat64(authAttemptsTotal.WithLabelValues(ResultFailure)))
}

func TestRecordTokenRenewal(t *testing.T) {
	before := testutil.ToFloat64(tokenRenewalsTotal.WithLabelValues(ResultNotRenewable))

	RecordTokenRenewal(ResultNotRenewable)

	assert.Equal(t, before+1, testutil.ToFloat64(tokenRenewalsTotal.WithLabelValues(ResultNotRenewable)))
}

func TestUpdateLifecycleState(t *testing.T) {
	all := []string{"UNAUTHENTICATED", "AUTHENTICATED", "EXPIRED"}

	UpdateLifecycleState("AUTHENTICATED", all)

	assert.Equal(t, 1.0, testutil.ToFloat64(lifecycleState.WithLabelValues("AUTHENTICATED")))
	assert.Equal(t, 0.0, testutil.ToFloat64(lifecycleState.WithLabelValues("UNAUTHENTICATED")))
	assert.Equal(t, 0.0, testutil.ToFloat64(lifecycleState.WithLabelValues("EXPIRED")))

	UpdateLifecycleState("UNAUTHENTICATED", all)

	assert.Equal(t, 0.0, testutil.ToFloat64(lifecycleState.WithLabelValues("AUTHENTICATED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(lifecycleState.WithLabelValues("UNAUTHENTICATED")))
}

func TestRecordSecretFetch(t *testing.T) {
	before := testutil.ToFloat64(secretFetchesTotal.WithLabelValues("metrics/test", ResultSuccess))

	RecordSecretFetch("metrics/test", ResultSuccess, 0.02)

	assert.Equal(t, before+1, testutil.ToFloat64(secretFetchesTotal.WithLabelValues("metrics/test", ResultSuccess)))
}

func TestRecordSweep(t *testing.T) {
	beforeSkipped := testutil.ToFloat64(sweepsTotal.WithLabelValues(SweepSkipped))
	beforePartial := testutil.ToFloat64(sweepsTotal.WithLabelValues(SweepPartial))

	RecordSweep(SweepSkipped, 0)
	RecordSweep(SweepPartial, 0.5)

	assert.Equal(t, beforeSkipped+1, testutil.ToFloat64(sweepsTotal.WithLabelValues(SweepSkipped)))
	assert.Equal(t, beforePartial+1, testutil.ToFloat64(sweepsTotal.WithLabelValues(SweepPartial)))
}

func TestGauges(t *testing.T) {
	UpdateTokenRemainingTTL(720)
	UpdateCacheEntries(3)

	assert.Equal(t, 720.0, testutil.ToFloat64(tokenRemainingTTL))
	assert.Equal(t, 3.0, testutil.ToFloat64(cacheEntries))
}
