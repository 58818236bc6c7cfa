package adapter

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lendstack/underwriting/internal/clock"
	"github.com/lendstack/underwriting/internal/scoring/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newThirdParty(t *testing.T, url string, timeout time.Duration) *ThirdParty {
	t.Helper()
	return NewThirdParty(ThirdPartyConfig{
		Name:    "EXPERIAN",
		URL:     url,
		APIKey:  "test-key",
		Timeout: timeout,
	}, clock.NewFake(time.Now()), zap.NewNop())
}

func TestThirdPartyNormalizesProviderResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("X-API-Key"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"score": 810,
			"riskLevel": "Low Risk",
			"recommendation": "Accept",
			"confidence": 0.9,
			"factors": [{"name": "Bureau score", "impact": "good", "weight": 0.7}]
		}`))
	}))
	defer server.Close()

	a := newThirdParty(t, server.URL, time.Second)
	result, err := a.Calculate(context.Background(), domain.Request{ApplicationID: "app-1"})
	require.NoError(t, err)

	// 810 on the 300-900 bureau scale maps to 850 on the canonical scale.
	assert.Equal(t, 850, result.Score)
	assert.Equal(t, domain.RiskLow, result.RiskLevel)
	assert.Equal(t, domain.RecommendApprove, result.Recommendation)
	assert.InDelta(t, 0.9, result.Confidence, 0.001)
	require.Len(t, result.Factors, 1)
	assert.Equal(t, "Bureau score", result.Factors[0].Factor)
	assert.Equal(t, domain.ImpactPositive, result.Factors[0].Impact)
	assert.Equal(t, "EXPERIAN", result.Provider)
}

func TestThirdPartyNormalizesPercentScale(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"score": 82, "riskLevel": "low", "decision": "approve"}`))
	}))
	defer server.Close()

	a := newThirdParty(t, server.URL, time.Second)
	result, err := a.Calculate(context.Background(), domain.Request{ApplicationID: "app-1"})
	require.NoError(t, err)

	assert.Equal(t, 820, result.Score)
	require.Len(t, result.Factors, 1)
	assert.Equal(t, "Overall Creditworthiness", result.Factors[0].Factor)
}

func TestThirdPartyFailsOnNon2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer server.Close()

	a := newThirdParty(t, server.URL, time.Second)
	_, err := a.Calculate(context.Background(), domain.Request{ApplicationID: "app-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestThirdPartyFailsOnMalformedBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"score": `))
	}))
	defer server.Close()

	a := newThirdParty(t, server.URL, time.Second)
	_, err := a.Calculate(context.Background(), domain.Request{ApplicationID: "app-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "malformed")
}

func TestThirdPartyFailsOnTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
	}))
	defer server.Close()
	defer close(release)

	a := newThirdParty(t, server.URL, 50*time.Millisecond)
	_, err := a.Calculate(context.Background(), domain.Request{ApplicationID: "app-1"})
	require.Error(t, err)
}

func TestThirdPartyRetriesBeforeGivingUp(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		if calls < 3 {
			http.Error(w, "flaky", http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"score": 700, "riskLevel": "medium", "recommendation": "refer"}`))
	}))
	defer server.Close()

	a := NewThirdParty(ThirdPartyConfig{
		Name:          "EXPERIAN",
		URL:           server.URL,
		APIKey:        "test-key",
		Timeout:       time.Second,
		RetryAttempts: 2,
	}, clock.NewFake(time.Now()), zap.NewNop())

	result, err := a.Calculate(context.Background(), domain.Request{ApplicationID: "app-1"})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 667, result.Score, "700 reads as a 300-900 bureau score")
	assert.Equal(t, domain.RecommendRefer, result.Recommendation)
}

func TestThirdPartyNotConfigured(t *testing.T) {
	a := NewThirdParty(ThirdPartyConfig{Name: "EXPERIAN"}, clock.NewFake(time.Now()), zap.NewNop())
	assert.False(t, a.Available())

	_, err := a.Calculate(context.Background(), domain.Request{ApplicationID: "app-1"})
	assert.ErrorIs(t, err, domain.ErrNotConfigured)
}

func TestFallbackUsesInternalWhenPrimaryFails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	internal := newInternal(t)
	primary := newThirdParty(t, server.URL, time.Second)
	fallback := NewFallback(primary, internal, zap.NewNop())

	result, err := fallback.Calculate(context.Background(), baseRequest())
	require.NoError(t, err)
	assert.Equal(t, InternalProvider, result.Provider)
}

func TestFallbackUsesInternalWhenPrimaryNotConfigured(t *testing.T) {
	internal := newInternal(t)
	primary := NewThirdParty(ThirdPartyConfig{Name: "EXPERIAN"}, clock.NewFake(time.Now()), zap.NewNop())
	fallback := NewFallback(primary, internal, zap.NewNop())

	result, err := fallback.Calculate(context.Background(), baseRequest())
	require.NoError(t, err)
	assert.Equal(t, InternalProvider, result.Provider)
}

func TestFallbackPrefersHealthyPrimary(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"score": 780, "riskLevel": "low", "recommendation": "approve", "confidence": 0.95}`))
	}))
	defer server.Close()

	internal := newInternal(t)
	primary := newThirdParty(t, server.URL, time.Second)
	fallback := NewFallback(primary, internal, zap.NewNop())

	result, err := fallback.Calculate(context.Background(), baseRequest())
	require.NoError(t, err)
	assert.Equal(t, "EXPERIAN", result.Provider)
	assert.Equal(t, 800, result.Score, "780 reads as a 300-900 bureau score")
	assert.Equal(t, domain.RecommendApprove, result.Recommendation)
}

func TestRegistryResolvesProviders(t *testing.T) {
	internal := newInternal(t)
	thirdParty := NewThirdParty(ThirdPartyConfig{Name: "EXPERIAN", URL: "https://example.test", APIKey: "k"}, clock.NewFake(time.Now()), zap.NewNop())
	registry := NewRegistry(internal, thirdParty)

	assert.Equal(t, internal, registry.Get(""))
	assert.Equal(t, internal, registry.Get("INTERNAL"))
	assert.Equal(t, internal, registry.Get("UNKNOWN"))
	assert.Equal(t, thirdParty, registry.Get("experian"))
	assert.Equal(t, []string{"EXPERIAN", "INTERNAL"}, registry.Providers())
}
