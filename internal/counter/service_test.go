package counter

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sitewatch/visitorfn/pkg/response"
)

func newTestService(t *testing.T) (*Service, *fakeDynamo) {
	t.Helper()
	store, fake, recorder := newTestStore(t)
	return NewService(store, nil, recorder), fake
}

func body(t *testing.T, r response.Response) response.Body {
	t.Helper()
	b, err := response.Decode(r)
	require.NoError(t, err)
	return b
}

// brokenStore fails every call with an unclassified error.
type brokenStore struct{}

func (brokenStore) Get(context.Context) (int64, error)       { return 0, errors.New("boom: secret") }
func (brokenStore) Increment(context.Context) (int64, error) { return 0, errors.New("boom: secret") }
func (brokenStore) InitializeIfAbsent(context.Context) error { return errors.New("boom: secret") }
func (brokenStore) Ping(context.Context) error               { return errors.New("boom: secret") }
func (brokenStore) TableName() string                        { return "t" }
func (brokenStore) TableInfo(context.Context) TableInfo {
	return TableInfo{TableName: "t", Status: "unknown", Error: "boom"}
}

func TestService_GetCountFresh(t *testing.T) {
	svc, _ := newTestService(t)

	r := svc.GetCount(context.Background())
	b := body(t, r)
	assert.Equal(t, http.StatusOK, r.StatusCode)
	assert.Equal(t, json.Number("0"), b["count"])
	assert.Equal(t, "Visitor count retrieved successfully", b["message"])
}

func TestService_IncrementThenGet(t *testing.T) {
	store, fake, recorder := newTestStore(t)
	svc := NewService(store, nil, recorder)
	fake.setCount("homePage", "10")
	ctx := context.Background()

	const n = 7
	for i := 0; i < n; i++ {
		r := svc.IncrementCount(ctx)
		require.Equal(t, http.StatusOK, r.StatusCode)
		assert.Equal(t, "Visitor count updated successfully", body(t, r)["message"])
	}

	b := body(t, svc.GetCount(ctx))
	assert.Equal(t, json.Number("17"), b["count"])

	expected := `
# HELP visitorfn_counter_value Last observed visitor count
# TYPE visitorfn_counter_value gauge
visitorfn_counter_value 17
`
	assert.NoError(t, testutil.GatherAndCompare(recorder.Registry(),
		strings.NewReader(expected), "visitorfn_counter_value"))
}

func TestService_MissingTableAsymmetry(t *testing.T) {
	svc, fake := newTestService(t)
	fake.getErr = missingTable
	fake.updateErr = missingTable
	ctx := context.Background()

	r := svc.GetCount(ctx)
	assert.Equal(t, http.StatusOK, r.StatusCode)
	b := body(t, r)
	assert.Equal(t, json.Number("0"), b["count"])
	assert.Equal(t, "Counter initialized with default value", b["message"])

	r = svc.IncrementCount(ctx)
	assert.Equal(t, http.StatusNotFound, r.StatusCode)
	assert.Equal(t, "Visitor counter table not found or not initialized", body(t, r)["message"])
}

func TestService_Throttled(t *testing.T) {
	svc, fake := newTestService(t)
	throttled := &types.ProvisionedThroughputExceededException{Message: aws.String("slow down")}
	fake.getErr = throttled
	fake.updateErr = throttled

	for _, r := range []response.Response{
		svc.GetCount(context.Background()),
		svc.IncrementCount(context.Background()),
	} {
		assert.Equal(t, http.StatusTooManyRequests, r.StatusCode)
		b := body(t, r)
		assert.Equal(t, true, b["retry"])
		assert.Equal(t, json.Number("30"), b["retryAfter"])
	}
}

func TestService_BackendError(t *testing.T) {
	svc, fake := newTestService(t)
	fake.updateErr = &types.InternalServerError{Message: aws.String("internal")}

	r := svc.IncrementCount(context.Background())
	assert.Equal(t, http.StatusInternalServerError, r.StatusCode)
	b := body(t, r)
	assert.Equal(t, "Database service error", b["message"])
	assert.Equal(t, "InternalServerError", b["details"].(map[string]interface{})["errorCode"])
}

func TestService_UnexpectedErrorsAreGeneric(t *testing.T) {
	svc := NewService(brokenStore{}, nil, nil)
	ctx := context.Background()

	for name, r := range map[string]response.Response{
		"get":        svc.GetCount(ctx),
		"increment":  svc.IncrementCount(ctx),
		"initialize": svc.Initialize(ctx),
		"analytics":  svc.Analytics(ctx),
	} {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, http.StatusInternalServerError, r.StatusCode)
			assert.Equal(t, response.Body{"message": "Internal server error occurred"}, body(t, r))
			assert.NotContains(t, r.Body, "secret")
		})
	}
}

func TestService_Initialize(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		r := svc.Initialize(ctx)
		assert.Equal(t, http.StatusOK, r.StatusCode)
		assert.Equal(t, true, body(t, r)["initialized"])
	}
}

func TestService_InitializeFailures(t *testing.T) {
	for name, err := range map[string]error{
		"missing table": missingTable,
		"throttled":     &types.ProvisionedThroughputExceededException{Message: aws.String("slow")},
		"backend":       &types.InternalServerError{Message: aws.String("internal")},
	} {
		t.Run(name, func(t *testing.T) {
			svc, fake := newTestService(t)
			fake.putErr = err

			r := svc.Initialize(context.Background())
			assert.Equal(t, http.StatusInternalServerError, r.StatusCode)
			assert.Equal(t, response.Body{"message": "Internal server error occurred"}, body(t, r))
		})
	}
}

func TestService_Health(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		svc, _ := newTestService(t)

		r := svc.Health(context.Background())
		assert.Equal(t, http.StatusOK, r.StatusCode)
		b := body(t, r)
		assert.Equal(t, "visitor-counter", b["service"])
		assert.Equal(t, "healthy", b["status"])
		db := b["database"].(map[string]interface{})
		assert.Equal(t, "active", db["connection"])
		assert.Equal(t, "visitor-counter", db["table"])
		assert.Equal(t, "ACTIVE", b["table"].(map[string]interface{})["status"])
	})

	t.Run("unreachable table", func(t *testing.T) {
		svc, fake := newTestService(t)
		fake.getErr = missingTable
		fake.describeErr = missingTable

		r := svc.Health(context.Background())
		assert.Equal(t, http.StatusServiceUnavailable, r.StatusCode)
		b := body(t, r)
		assert.Equal(t, "unhealthy", b["status"])
		db := b["database"].(map[string]interface{})
		assert.Equal(t, "failed", db["connection"])
		assert.Equal(t, "ResourceNotFoundException", db["error"])
		assert.Equal(t, "unknown", b["table"].(map[string]interface{})["status"])
	})
}

func TestService_Analytics(t *testing.T) {
	svc, _ := newTestService(t)
	fixed := time.Date(2026, 5, 4, 3, 2, 1, 0, time.UTC)
	svc.now = func() time.Time { return fixed }
	ctx := context.Background()

	b := body(t, svc.Analytics(ctx))
	assert.Equal(t, json.Number("0"), b["currentCount"])
	assert.Equal(t, "ACTIVE", b["tableStatus"])
	assert.Nil(t, b["lastUpdate"])
	assert.Contains(t, b, "lastUpdate")

	svc.IncrementCount(ctx)

	b = body(t, svc.Analytics(ctx))
	assert.Equal(t, json.Number("1"), b["currentCount"])
	assert.Equal(t, "2026-05-04T03:02:01Z", b["lastUpdate"])
}
