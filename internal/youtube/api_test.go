package youtube

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	yt "google.golang.org/api/youtube/v3"

	"clipsync/internal/retry"
)

func TestParseISODuration(t *testing.T) {
	tests := []struct {
		input   string
		want    time.Duration
		wantErr bool
	}{
		{"PT4M13S", 4*time.Minute + 13*time.Second, false},
		{"PT1H", time.Hour, false},
		{"PT1H2M3S", time.Hour + 2*time.Minute + 3*time.Second, false},
		{"P1DT2H", 26 * time.Hour, false},
		{"PT45S", 45 * time.Second, false},
		{"P0D", 0, false},
		{"", 0, true},
		{"PT", 0, true},
		{"4:13", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseISODuration(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseISODuration(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseISODuration(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseClockDuration(t *testing.T) {
	tests := []struct {
		input   string
		want    time.Duration
		wantErr bool
	}{
		{"45", 45 * time.Second, false},
		{"4:13", 4*time.Minute + 13*time.Second, false},
		{"1:02:03", time.Hour + 2*time.Minute + 3*time.Second, false},
		{"", 0, true},
		{"1:2:3:4", 0, true},
		{"ab:cd", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseClockDuration(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseClockDuration(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseClockDuration(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestAPIErrorClassifier(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"channel not found", ErrChannelNotFound, false},
		{"bad request", &googleapi.Error{Code: 400}, false},
		{"forbidden key", &googleapi.Error{Code: 403, Message: "API key not valid"}, false},
		{"rate limited", &googleapi.Error{Code: 403, Message: "rateLimitExceeded"}, true},
		{"server error", &googleapi.Error{Code: 503}, true},
		{"canceled", context.Canceled, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := apiErrorClassifier(tt.err); got != tt.want {
				t.Errorf("apiErrorClassifier(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

// fakeDataAPI serves the handful of Data API endpoints the lister calls.
func fakeDataAPI(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/youtube/v3/channels", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("forHandle") != "" {
			w.Write([]byte(`{"items":[{"id":"UCuAXFkgsw1L7xaCfnd5JJOw"}]}`))
			return
		}
		w.Write([]byte(`{"items":[{"id":"UCuAXFkgsw1L7xaCfnd5JJOw","snippet":{"title":"Test Channel"},
			"contentDetails":{"relatedPlaylists":{"uploads":"UUuAXFkgsw1L7xaCfnd5JJOw"}}}]}`))
	})
	mux.HandleFunc("/youtube/v3/playlistItems", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"items":[
			{"snippet":{"title":"Short","publishedAt":"2024-01-01T00:00:00Z"},"contentDetails":{"videoId":"aaaaaaaaaaa"}},
			{"snippet":{"title":"Long","publishedAt":"2023-12-01T00:00:00Z"},"contentDetails":{"videoId":"bbbbbbbbbbb"}}
		]}`))
	})
	mux.HandleFunc("/youtube/v3/videos", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if strings.Contains(r.URL.Query().Get("part"), "snippet") {
			w.Write([]byte(`{"items":[{"id":"aaaaaaaaaaa","snippet":{"title":"Short"}}]}`))
			return
		}
		w.Write([]byte(`{"items":[
			{"id":"aaaaaaaaaaa","contentDetails":{"duration":"PT4M13S"},"statistics":{"viewCount":"10"}},
			{"id":"bbbbbbbbbbb","contentDetails":{"duration":"PT1H"}}
		]}`))
	})
	return httptest.NewServer(mux)
}

func newTestAPILister(t *testing.T) *APILister {
	t.Helper()
	srv := fakeDataAPI(t)
	t.Cleanup(srv.Close)

	service, err := yt.NewService(context.Background(),
		option.WithoutAuthentication(),
		option.WithEndpoint(srv.URL+"/"),
		option.WithHTTPClient(srv.Client()))
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	a := newAPILister(service, 0, nil)
	cfg := retry.Config{MaxRetries: 0}
	a.RetryConfig = &cfg
	return a
}

func TestAPILister_ListVideos(t *testing.T) {
	a := newTestAPILister(t)

	videos, err := a.ListVideos(context.Background(), "@testchannel", &ListOptions{MaxResults: 60, MaxDuration: 10 * time.Minute})
	if err != nil {
		t.Fatalf("ListVideos() error = %v", err)
	}
	if len(videos) != 1 {
		t.Fatalf("ListVideos() len = %d, want 1: %+v", len(videos), videos)
	}
	v := videos[0]
	if v.ID != "aaaaaaaaaaa" || v.Duration != 4*time.Minute+13*time.Second || v.ChannelName != "Test Channel" {
		t.Errorf("ListVideos()[0] = %+v", v)
	}
	if a.EstimatedQuota() >= dailyQuota {
		t.Errorf("EstimatedQuota() = %d, want usage tracked", a.EstimatedQuota())
	}
}

func TestAPILister_Title(t *testing.T) {
	a := newTestAPILister(t)

	title, err := a.Title(context.Background(), "aaaaaaaaaaa")
	if err != nil {
		t.Fatalf("Title() error = %v", err)
	}
	if title != "Short" {
		t.Errorf("Title() = %q, want %q", title, "Short")
	}
}

func TestAPIKeyTransport(t *testing.T) {
	var gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.URL.Query().Get("key")
	}))
	defer srv.Close()

	client := &http.Client{Transport: &apiKeyTransport{key: "secret"}}
	resp, err := client.Get(srv.URL + "/youtube/v3/videos?part=id")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	resp.Body.Close()
	if gotKey != "secret" {
		t.Errorf("key = %q, want %q", gotKey, "secret")
	}
}

type stubLister struct{ called bool }

func (s *stubLister) ListVideos(ctx context.Context, channel string, opts *ListOptions) ([]VideoInfo, error) {
	s.called = true
	return nil, nil
}

func TestAPILister_FallbackWhenQuotaExhausted(t *testing.T) {
	a := newTestAPILister(t)
	fb := &stubLister{}
	a.SetFallbackLister(fb)
	a.quotaReserve = dailyQuota + 1
	a.trackQuotaUsage(1)

	if _, err := a.ListVideos(context.Background(), "@testchannel", nil); err != nil {
		t.Fatalf("ListVideos() error = %v", err)
	}
	if !fb.called {
		t.Error("fallback lister was not used after quota exhaustion")
	}
}

func TestNewAPILister_RequiresKey(t *testing.T) {
	_, err := NewAPILister(context.Background(), "", 0, nil, nil)
	if err == nil || errors.Is(err, ErrChannelNotFound) {
		t.Errorf("NewAPILister() error = %v, want missing key error", err)
	}
}
