package weather

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/farm-advisor/internal/common"
	"github.com/joseph-ayodele/farm-advisor/internal/llm"
)

const puneJSON = `{"cod":200,"name":"Pune","weather":[{"description":"light rain"}],
"main":{"temp":24.5,"feels_like":25.1,"humidity":88,"pressure":1008},"wind":{"speed":3.6}}`

func owmServer(t *testing.T, handler func(n int32, w http.ResponseWriter, r *http.Request)) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handler(calls.Add(1), w, r)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestCurrent(t *testing.T) {
	srv, _ := owmServer(t, func(_ int32, w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/data/2.5/weather", r.URL.Path)
		require.Equal(t, "Pune", r.URL.Query().Get("q"))
		require.Equal(t, "metric", r.URL.Query().Get("units"))
		require.Equal(t, "secret", r.URL.Query().Get("appid"))
		_, _ = w.Write([]byte(puneJSON))
	})
	c := NewClient(ClientConfig{APIKey: "secret", BaseURL: srv.URL}, nil)

	cond, err := c.Current(context.Background(), "  Pune ")
	require.NoError(t, err)
	require.Equal(t, Conditions{
		City: "Pune", Description: "light rain", TempC: 24.5, FeelsLikeC: 25.1,
		HumidityPct: 88, PressureHPa: 1008, WindSpeedMS: 3.6,
	}, cond)
}

func TestCurrentRetriesTransientFailures(t *testing.T) {
	srv, calls := owmServer(t, func(n int32, w http.ResponseWriter, _ *http.Request) {
		if n < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(puneJSON))
	})
	c := NewClient(ClientConfig{BaseURL: srv.URL, MaxRetries: 2}, nil)

	_, err := c.Current(context.Background(), "Pune")
	require.NoError(t, err)
	require.EqualValues(t, 3, calls.Load())
}

func TestCurrentCityNotFoundIsPermanent(t *testing.T) {
	srv, calls := owmServer(t, func(_ int32, w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"cod":"404","message":"city not found"}`))
	})
	c := NewClient(ClientConfig{BaseURL: srv.URL, MaxRetries: 3, BreakerFailures: 1}, nil)

	for i := 0; i < 3; i++ {
		_, err := c.Current(context.Background(), "Atlantis")
		require.ErrorIs(t, err, ErrCityNotFound)
	}
	require.EqualValues(t, 3, calls.Load())
	require.Equal(t, "closed", c.BreakerState())
}

func TestCurrentBreakerOpens(t *testing.T) {
	srv, calls := owmServer(t, func(_ int32, w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	c := NewClient(ClientConfig{BaseURL: srv.URL, BreakerFailures: 2, BreakerOpen: time.Hour}, nil)

	for i := 0; i < 2; i++ {
		_, err := c.Current(context.Background(), "Pune")
		require.Error(t, err)
	}
	_, err := c.Current(context.Background(), "Pune")
	require.ErrorIs(t, err, gobreaker.ErrOpenState)
	require.EqualValues(t, 2, calls.Load())
	require.Equal(t, "open", c.BreakerState())
}

type fakeSource struct {
	calls int
	cond  Conditions
	err   error
}

func (f *fakeSource) Current(_ context.Context, city string) (Conditions, error) {
	f.calls++
	if f.err != nil {
		return Conditions{}, f.err
	}
	c := f.cond
	c.City = city
	return c, nil
}

type fakeGenerator struct {
	text   string
	err    error
	prompt string
}

func (f *fakeGenerator) Generate(_ context.Context, prompt string) (string, error) {
	f.prompt = prompt
	return f.text, f.err
}

func TestAdviceFromModel(t *testing.T) {
	src := &fakeSource{cond: Conditions{Description: "clear sky", TempC: 31}}
	gen := &fakeGenerator{text: "1. **Irrigation:** Water at dawn.\n2. **Shade:** Cover seedlings."}
	a := NewAdvisor(src, gen, time.Minute, nil)

	adv, err := a.Advice(context.Background(), "Nashik")
	require.NoError(t, err)
	require.Equal(t, SourceModel, adv.Source)
	require.Equal(t, []llm.AdviceItem{
		{Heading: "Irrigation", Text: "Water at dawn."},
		{Heading: "Shade", Text: "Cover seedlings."},
	}, adv.Items)
	require.Contains(t, gen.prompt, "clear sky")
	require.False(t, adv.Cached)
}

func TestAdviceFallsBackWhenModelFails(t *testing.T) {
	a := NewAdvisor(&fakeSource{}, &fakeGenerator{err: errors.New("quota")}, time.Minute, nil)
	adv, err := a.Advice(context.Background(), "Nashik")
	require.NoError(t, err)
	require.Equal(t, SourceFallback, adv.Source)
	require.Len(t, adv.Items, 7)

	adv, err = NewAdvisor(&fakeSource{}, nil, time.Minute, nil).Advice(context.Background(), "Nashik")
	require.NoError(t, err)
	require.Equal(t, SourceFallback, adv.Source)
}

func TestAdviceCachePerCaseInsensitiveCity(t *testing.T) {
	src := &fakeSource{}
	a := NewAdvisor(src, nil, 30*time.Minute, nil)
	now := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	a.cache.now = func() time.Time { return now }

	_, err := a.Advice(context.Background(), "Pune")
	require.NoError(t, err)
	adv, err := a.Advice(context.Background(), " pUNE ")
	require.NoError(t, err)
	require.True(t, adv.Cached)
	require.Equal(t, 1, src.calls)

	now = now.Add(30 * time.Minute)
	adv, err = a.Advice(context.Background(), "pune")
	require.NoError(t, err)
	require.False(t, adv.Cached)
	require.Equal(t, 2, src.calls)
}

func TestAdviceErrors(t *testing.T) {
	_, err := NewAdvisor(&fakeSource{}, nil, time.Minute, nil).Advice(context.Background(), "  ")
	ae, ok := common.AsAppError(err)
	require.True(t, ok)
	require.Equal(t, common.CodeInput, ae.Code)

	_, err = NewAdvisor(&fakeSource{err: ErrCityNotFound}, nil, time.Minute, nil).Advice(context.Background(), "Atlantis")
	ae, ok = common.AsAppError(err)
	require.True(t, ok)
	require.Equal(t, common.CodeInput, ae.Code)
	require.Equal(t, "Could not fetch weather for Atlantis", ae.Message)

	src := &fakeSource{err: gobreaker.ErrOpenState}
	a := NewAdvisor(src, nil, time.Minute, nil)
	_, err = a.Advice(context.Background(), "Pune")
	ae, ok = common.AsAppError(err)
	require.True(t, ok)
	require.Equal(t, common.CodeUpstream, ae.Code)

	_, _ = a.Advice(context.Background(), "Pune")
	require.Equal(t, 2, src.calls, "failures are not cached")
}
