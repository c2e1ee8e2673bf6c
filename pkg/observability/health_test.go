package observability

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubBlob struct {
	err error
}

func (s *stubBlob) HealthCheck(ctx context.Context) error { return s.err }

func TestLiveness(t *testing.T) {
	checker := NewHealthChecker(nil, nil, nil)

	rec := httptest.NewRecorder()
	checker.Liveness(rec, httptest.NewRequest("GET", "/healthz", nil))

	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), StatusHealthy)
}

func TestReadiness_AllHealthy(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectPing()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	checker := NewHealthChecker(db, client, &stubBlob{})

	rec := httptest.NewRecorder()
	checker.Readiness(rec, httptest.NewRequest("GET", "/readyz", nil))

	assert.Equal(t, 200, rec.Code)

	var status HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, StatusHealthy, status.Status)
	assert.Len(t, status.Dependencies, 3)
}

func TestReadiness_BlobDown(t *testing.T) {
	checker := NewHealthChecker(nil, nil, &stubBlob{err: errors.New("bucket unreachable")})

	rec := httptest.NewRecorder()
	checker.Readiness(rec, httptest.NewRequest("GET", "/readyz", nil))

	assert.Equal(t, 503, rec.Code)

	var status HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, StatusUnhealthy, status.Status)
	assert.Equal(t, StatusUnhealthy, status.Dependencies["blob"].Status)
	assert.Contains(t, status.Dependencies["blob"].Message, "bucket unreachable")
}

func TestReadiness_SkipsNilDependencies(t *testing.T) {
	checker := NewHealthChecker(nil, nil, nil)

	rec := httptest.NewRecorder()
	checker.Readiness(rec, httptest.NewRequest("GET", "/readyz", nil))

	assert.Equal(t, 200, rec.Code)

	var status HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Empty(t, status.Dependencies)
}
