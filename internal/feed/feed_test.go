package feed

import (
	"bytes"
	"compress/gzip"
	"compress/zlib"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	logx "marquee/pkg/logx"
)

const sample = `{
	"m2": {"Order": 2, "TZeroPaused": true, "TZeroLaunchDate": {"Seconds": 1700000100}},
	"m1": {"Order": 1, "TZeroPaused": false, "TZeroLaunchDate": {"Seconds": 1700000000}}
}`

func gz(b []byte) []byte {
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	_, _ = w.Write(b)
	_ = w.Close()
	return buf.Bytes()
}

func zl(b []byte) []byte {
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	_, _ = w.Write(b)
	_ = w.Close()
	return buf.Bytes()
}

func TestFetchEncodings(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		body []byte
	}{
		{"raw deflate", Compress([]byte(sample))},
		{"zlib", zl([]byte(sample))},
		{"gzip", gz([]byte(sample))},
		{"plain", []byte(sample)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write(tt.body)
			}))
			defer srv.Close()

			c := New(srv.URL, time.Second, logx.Nop())
			m, err := c.Next(context.Background())
			if err != nil {
				t.Fatalf("Next = %v", err)
			}
			if m.ID != "m1" || m.Paused || !m.TZero.Equal(time.Unix(1700000000, 0)) {
				t.Fatalf("Next = %+v, want m1 unpaused", m)
			}

			m2, err := c.Mission(context.Background(), "m2")
			if err != nil {
				t.Fatalf("Mission = %v", err)
			}
			if !m2.Paused {
				t.Fatal("m2 should be paused")
			}
		})
	}
}

func TestFetchHTTPError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	if _, err := New(srv.URL, time.Second, logx.Nop()).Fetch(context.Background()); err == nil {
		t.Fatal("Fetch = nil error, want error")
	}
}

func TestPick(t *testing.T) {
	t.Parallel()
	if _, err := Pick(nil); !errors.Is(err, ErrNoMissions) {
		t.Fatalf("Pick(nil) = %v, want %v", err, ErrNoMissions)
	}
	m, err := Pick(map[string]Mission{
		"b": {ID: "b", Order: 1},
		"a": {ID: "a", Order: 1},
		"c": {ID: "c", Order: 0.5},
	})
	if err != nil || m.ID != "c" {
		t.Fatalf("Pick = %+v, %v, want c", m, err)
	}
	m, _ = Pick(map[string]Mission{"b": {ID: "b", Order: 1}, "a": {ID: "a", Order: 1}})
	if m.ID != "a" {
		t.Fatalf("tie Pick = %q, want a", m.ID)
	}
}
