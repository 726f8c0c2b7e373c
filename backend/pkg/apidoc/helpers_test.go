package apidoc

import (
	"reflect"
	"testing"
)

func TestExtractParamNames(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		path     string
		expected []string
		wantErr  bool
	}{
		{name: "no params", path: "/api/ping", expected: []string{}},
		{name: "one param", path: "/api/history/{channel}", expected: []string{"channel"}},
		{name: "param with regex", path: "/api/history/{channel:[a-z]+}", expected: []string{"channel"}},
		{name: "topic params", path: "{user}/feeds/{feed}", expected: []string{"user", "feed"}},
		{name: "two params in one segment", path: "/{from}-{to}", expected: []string{"from", "to"}},
		{name: "mismatched brackets", path: "/history/{channel", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := ExtractParamNames(tt.path)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ExtractParamNames(%q) error = %v, wantErr %v", tt.path, err, tt.wantErr)
			}

			if !tt.wantErr && !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("ExtractParamNames(%q) = %v, want %v", tt.path, got, tt.expected)
			}
		})
	}
}

func TestSanitizePath(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"":                  "/",
		"/":                 "/",
		"/api/":             "/api",
		"//api//history/":   "/api/history",
		"/api/history/soil": "/api/history/soil",
	}

	for in, want := range tests {
		if got := SanitizePath(in); got != want {
			t.Errorf("SanitizePath(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestIsValidParameterName(t *testing.T) {
	t.Parallel()

	tests := map[string]bool{
		"channel":  true,
		"feed_key": true,
		"sensor2":  true,
		"":         false,
		"2sensor":  false,
		"_channel": false,
		"feed-key": false,
		"feed key": false,
		"känal":    false,
	}

	for name, want := range tests {
		if got := IsValidParameterName(name); got != want {
			t.Errorf("IsValidParameterName(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestValidateOperationID(t *testing.T) {
	t.Parallel()

	for _, id := range []string{"ping", "getSoilHistory"} {
		if err := validateOperationID(id); err != nil {
			t.Errorf("validateOperationID(%q) error = %v", id, err)
		}
	}

	for _, id := range []string{"", "get-history", "history2", "get history"} {
		if err := validateOperationID(id); err == nil {
			t.Errorf("validateOperationID(%q) expected error", id)
		}
	}
}
