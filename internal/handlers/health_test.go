package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	domain "github.com/zenkart/admin-api/internal/domain"
	"github.com/zenkart/admin-api/internal/services"
)

type stubSystemService struct {
	healthReportFn func(ctx context.Context) (services.SystemHealthReport, error)
}

func (s *stubSystemService) HealthReport(ctx context.Context) (services.SystemHealthReport, error) {
	if s.healthReportFn != nil {
		return s.healthReportFn(ctx)
	}
	return services.SystemHealthReport{Status: domain.HealthStatusOK}, nil
}

func fixedHealthClock() time.Time {
	return time.Date(2026, time.March, 14, 9, 0, 0, 0, time.UTC)
}

func TestHealthzIncludesBuildInfo(t *testing.T) {
	h := NewHealthHandlers(
		WithHealthClock(fixedHealthClock),
		WithHealthBuildInfo(services.BuildInfo{
			Version:     "1.4.2",
			CommitSHA:   "abc1234",
			Environment: "staging",
			StartedAt:   fixedHealthClock().Add(-90 * time.Second),
		}),
	)

	rec := httptest.NewRecorder()
	h.Healthz(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	var payload map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload["status"] != "ok" {
		t.Fatalf("status field = %v, want ok", payload["status"])
	}
	if payload["version"] != "1.4.2" {
		t.Fatalf("version = %v, want 1.4.2", payload["version"])
	}
	if payload["commitSha"] != "abc1234" {
		t.Fatalf("commitSha = %v, want abc1234", payload["commitSha"])
	}
	if payload["environment"] != "staging" {
		t.Fatalf("environment = %v, want staging", payload["environment"])
	}
	if payload["uptime"] != "1m30s" {
		t.Fatalf("uptime = %v, want 1m30s", payload["uptime"])
	}
}

func TestHealthzOmitsEmptyBuildFields(t *testing.T) {
	h := NewHealthHandlers(WithHealthClock(fixedHealthClock))

	rec := httptest.NewRecorder()
	h.Healthz(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	var payload map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if _, ok := payload["version"]; ok {
		t.Fatal("version should be omitted when unset")
	}
	if _, ok := payload["commitSha"]; ok {
		t.Fatal("commitSha should be omitted when unset")
	}
}

func TestReadyzWithoutSystemServiceReportsOK(t *testing.T) {
	h := NewHealthHandlers(WithHealthClock(fixedHealthClock))

	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestReadyzHealthyReport(t *testing.T) {
	system := &stubSystemService{
		healthReportFn: func(context.Context) (services.SystemHealthReport, error) {
			return services.SystemHealthReport{
				Status:      domain.HealthStatusOK,
				Version:     "1.4.2",
				CommitSHA:   "abc1234",
				Environment: "production",
				Uptime:      2 * time.Minute,
				GeneratedAt: fixedHealthClock(),
				Checks: map[string]domain.SystemHealthCheck{
					"firestore": {
						Status:    domain.HealthStatusOK,
						Latency:   12 * time.Millisecond,
						CheckedAt: fixedHealthClock(),
					},
				},
			}, nil
		},
	}
	h := NewHealthHandlers(WithHealthClock(fixedHealthClock), WithHealthSystemService(system))

	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusOK, rec.Body.String())
	}
	var payload readyzResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if payload.Status != "ok" {
		t.Fatalf("status = %q, want ok", payload.Status)
	}
	if payload.Version != "1.4.2" || payload.CommitSHA != "abc1234" {
		t.Fatalf("build identity not propagated: %+v", payload)
	}
	check, ok := payload.Checks["firestore"]
	if !ok {
		t.Fatal("firestore check missing from payload")
	}
	if check.Status != "ok" || check.LatencyMS != 12 {
		t.Fatalf("unexpected firestore check: %+v", check)
	}
	if len(payload.Details) != 0 {
		t.Fatalf("details = %v, want empty", payload.Details)
	}
}

func TestReadyzDegradedReportReturns503(t *testing.T) {
	system := &stubSystemService{
		healthReportFn: func(context.Context) (services.SystemHealthReport, error) {
			return services.SystemHealthReport{
				Status: domain.HealthStatusError,
				Checks: map[string]domain.SystemHealthCheck{
					"firestore": {Status: domain.HealthStatusError, Error: "deadline exceeded"},
					"pubsub":    {Status: domain.HealthStatusOK},
				},
			}, nil
		},
	}
	h := NewHealthHandlers(WithHealthClock(fixedHealthClock), WithHealthSystemService(system))

	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
	var payload readyzResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(payload.Details) != 1 || payload.Details[0] != "firestore: deadline exceeded" {
		t.Fatalf("details = %v, want failing firestore entry", payload.Details)
	}
}

func TestReadyzReportErrorReturns503(t *testing.T) {
	system := &stubSystemService{
		healthReportFn: func(context.Context) (services.SystemHealthReport, error) {
			return services.SystemHealthReport{}, errors.New("health collection failed")
		},
	}
	h := NewHealthHandlers(WithHealthClock(fixedHealthClock), WithHealthSystemService(system))

	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}
