package metrics

import (
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRegister_Idempotent(t *testing.T) {
	assert.NotPanics(t, func() {
		Register()
		Register()
	})
}

func TestRecordHTTPRequest(t *testing.T) {
	before := testutil.ToFloat64(httpRequests.WithLabelValues("GET", "/api/admin/applications/:id", "200"))

	RecordHTTPRequest("GET", "/api/admin/applications/:id", 200, 15*time.Millisecond)

	after := testutil.ToFloat64(httpRequests.WithLabelValues("GET", "/api/admin/applications/:id", "200"))
	assert.Equal(t, before+1, after)
}

func TestRecordHTTPRequest_UnmatchedRoute(t *testing.T) {
	RecordHTTPRequest("GET", "", 404, time.Millisecond)

	assert.GreaterOrEqual(t, testutil.ToFloat64(httpRequests.WithLabelValues("GET", "unmatched", "404")), 1.0)
}

func TestDomainCounters(t *testing.T) {
	RecordOfferSearch("caseNumber", "found")
	RecordSubmission("created")
	RecordUploadedBytes(2048)
	RecordStatusUpdate("approved")
	RecordAdminLogin("throttled")

	assert.GreaterOrEqual(t, testutil.ToFloat64(offerSearches.WithLabelValues("caseNumber", "found")), 1.0)
	assert.GreaterOrEqual(t, testutil.ToFloat64(submissions.WithLabelValues("created")), 1.0)
	assert.GreaterOrEqual(t, testutil.ToFloat64(uploadedBytes), 2048.0)
	assert.GreaterOrEqual(t, testutil.ToFloat64(statusUpdates.WithLabelValues("approved")), 1.0)
	assert.GreaterOrEqual(t, testutil.ToFloat64(adminLogins.WithLabelValues("throttled")), 1.0)
}

func TestRecordOfferSearch_BoundedTypes(t *testing.T) {
	for i := 0; i < 500; i++ {
		RecordOfferSearch(fmt.Sprintf("attacker-%d", i), "invalid")
	}

	assert.GreaterOrEqual(t, testutil.ToFloat64(offerSearches.WithLabelValues("other", "invalid")), 500.0)
	// Three type labels times four results at most.
	assert.LessOrEqual(t, testutil.CollectAndCount(offerSearches), 12)
}

func TestRecordHTTPRequest_UnknownMethod(t *testing.T) {
	for i := 0; i < 100; i++ {
		RecordHTTPRequest(fmt.Sprintf("VERB%d", i), "/api/offers/search", 405, time.Millisecond)
	}

	assert.GreaterOrEqual(t, testutil.ToFloat64(httpRequests.WithLabelValues("other", "/api/offers/search", "405")), 100.0)
	assert.Less(t, testutil.CollectAndCount(httpRequests), 100)
}

func TestSearchTypeLabel(t *testing.T) {
	assert.Equal(t, "caseNumber", SearchTypeLabel("caseNumber"))
	assert.Equal(t, "name", SearchTypeLabel("name"))
	assert.Equal(t, "other", SearchTypeLabel(""))
	assert.Equal(t, "other", SearchTypeLabel("NAME"))
}
