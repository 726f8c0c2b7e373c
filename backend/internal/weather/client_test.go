package weather

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"plant-monitor/backend/internal/poller"
)

func TestAmbientTemperature(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		status  int
		body    string
		want    float64
		wantErr bool
		errIs   error
	}{
		{
			name:   "ok",
			status: http.StatusOK,
			body:   `{"coord":{"lon":18.1,"lat":59.3},"main":{"temp":12.3,"humidity":81},"name":"Stockholm"}`,
			want:   12.3,
		},
		{
			name:   "below zero",
			status: http.StatusOK,
			body:   `{"main":{"temp":-4.5}}`,
			want:   -4.5,
		},
		{
			name:    "missing main",
			status:  http.StatusOK,
			body:    `{"cod":200}`,
			wantErr: true,
			errIs:   ErrMissingTemperature,
		},
		{
			name:    "null temp",
			status:  http.StatusOK,
			body:    `{"main":{"temp":null}}`,
			wantErr: true,
			errIs:   ErrMissingTemperature,
		},
		{
			name:    "unauthorized",
			status:  http.StatusUnauthorized,
			body:    `{"cod":401,"message":"Invalid API key"}`,
			wantErr: true,
		},
		{
			name:    "malformed",
			status:  http.StatusOK,
			body:    `{"main":`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := NewClient(srv.URL, "key", srv.Client())

			got, err := c.AmbientTemperature(context.Background(), poller.Location{Latitude: 59.3, Longitude: 18.1})

			if tt.wantErr {
				if err == nil {
					t.Fatalf("AmbientTemperature() = %v, want error", got)
				}
				if tt.errIs != nil && !errors.Is(err, tt.errIs) {
					t.Errorf("error = %v, want %v", err, tt.errIs)
				}
				return
			}

			if err != nil {
				t.Fatalf("AmbientTemperature() error = %v", err)
			}

			if got != tt.want {
				t.Errorf("AmbientTemperature() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAmbientTemperature_Query(t *testing.T) {
	t.Parallel()

	var gotPath, gotQuery string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		_, _ = w.Write([]byte(`{"main":{"temp":1}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", "secret", srv.Client())
	if _, err := c.AmbientTemperature(context.Background(), poller.Location{Latitude: 59.33, Longitude: -18.07}); err != nil {
		t.Fatal(err)
	}

	if gotPath != "/data/2.5/weather" {
		t.Errorf("path = %q", gotPath)
	}

	want := "appid=secret&lat=59.33&lon=-18.07&units=metric"
	if gotQuery != want {
		t.Errorf("query = %q, want %q", gotQuery, want)
	}
}

func TestAmbientTemperature_Errors(t *testing.T) {
	t.Parallel()

	t.Run("missing key", func(t *testing.T) {
		t.Parallel()

		_, err := NewClient("http://127.0.0.1:1", "", nil).AmbientTemperature(context.Background(), poller.Location{})
		if !errors.Is(err, ErrMissingAPIKey) {
			t.Errorf("error = %v, want ErrMissingAPIKey", err)
		}
	})

	t.Run("key not leaked", func(t *testing.T) {
		t.Parallel()

		// closed server: connection refused
		srv := httptest.NewServer(http.NotFoundHandler())
		srv.Close()

		_, err := NewClient(srv.URL, "topsecret", nil).AmbientTemperature(context.Background(), poller.Location{})
		if err == nil {
			t.Fatal("expected error")
		}
		if strings.Contains(err.Error(), "topsecret") {
			t.Errorf("error leaks api key: %v", err)
		}
	})

	t.Run("context cancelled", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			<-r.Context().Done()
		}))
		defer srv.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		_, err := NewClient(srv.URL, "key", srv.Client()).AmbientTemperature(ctx, poller.Location{})
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("error = %v, want deadline exceeded", err)
		}
	})
}
