// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package proxy

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
)

func TestStaticProxies(t *testing.T) {
	tests := []struct {
		name    string
		addrs   []string
		want    []string
		wantErr bool
	}{
		{
			"bare host ports",
			[]string{"10.0.0.1:8080", "10.0.0.2:3128"},
			[]string{"http://10.0.0.1:8080", "http://10.0.0.2:3128"},
			false,
		},
		{
			"explicit scheme kept",
			[]string{"socks5://10.0.0.3:1080"},
			[]string{"socks5://10.0.0.3:1080"},
			false,
		},
		{"empty list", nil, nil, false},
		{"missing host", []string{"http://"}, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Static{Addrs: tt.addrs}.Proxies(context.Background())
			if tt.wantErr {
				if err == nil {
					t.Fatal("Proxies() error = nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("Proxies() error = %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("len = %d, want %d", len(got), len(tt.want))
			}
			for i, u := range got {
				if u.String() != tt.want[i] {
					t.Errorf("proxy %d = %q, want %q", i, u.String(), tt.want[i])
				}
			}
		})
	}
}

func TestFreeListProxies(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "1.2.3.4:8080\n\n5.6.7.8:3128\nnot a proxy line\n")
	}))
	defer ts.Close()

	old := freeProxyListURL
	freeProxyListURL = ts.URL
	defer func() { freeProxyListURL = old }()

	got, err := FreeList{Client: ts.Client()}.Proxies(context.Background())
	if err != nil {
		t.Fatalf("Proxies() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2 (malformed lines skipped)", len(got))
	}
	if got[0].Host != "1.2.3.4:8080" || got[1].Host != "5.6.7.8:3128" {
		t.Errorf("proxies = %v, %v", got[0], got[1])
	}
}

func TestFreeListEmptyResponse(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	defer ts.Close()

	old := freeProxyListURL
	freeProxyListURL = ts.URL
	defer func() { freeProxyListURL = old }()

	if _, err := (FreeList{Client: ts.Client()}).Proxies(context.Background()); err == nil {
		t.Error("Proxies() error = nil for an empty list")
	}
}

func TestFreeListServerError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer ts.Close()

	old := freeProxyListURL
	freeProxyListURL = ts.URL
	defer func() { freeProxyListURL = old }()

	if _, err := (FreeList{Client: ts.Client()}).Proxies(context.Background()); err == nil {
		t.Error("Proxies() error = nil for HTTP 502")
	}
}

func TestRotatorCycles(t *testing.T) {
	proxies := []*url.URL{
		{Scheme: "http", Host: "10.0.0.1:8080"},
		{Scheme: "http", Host: "10.0.0.2:8080"},
		{Scheme: "http", Host: "10.0.0.3:8080"},
	}
	r := NewRotator(proxies)

	req := httptest.NewRequest(http.MethodGet, "https://scholar.google.com/scholar", nil)
	want := []string{"10.0.0.1:8080", "10.0.0.2:8080", "10.0.0.3:8080", "10.0.0.1:8080", "10.0.0.2:8080"}
	for i, host := range want {
		u, err := r.Proxy(req)
		if err != nil {
			t.Fatalf("Proxy() error = %v", err)
		}
		if u.Host != host {
			t.Errorf("call %d routed via %q, want %q", i, u.Host, host)
		}
	}
}

func TestRotatorEmptyMeansDirect(t *testing.T) {
	r := NewRotator(nil)
	u, err := r.Proxy(httptest.NewRequest(http.MethodGet, "https://scholar.google.com", nil))
	if err != nil {
		t.Fatalf("Proxy() error = %v", err)
	}
	if u != nil {
		t.Errorf("Proxy() = %v, want nil for a direct connection", u)
	}
}

func TestTransportCarriesRotation(t *testing.T) {
	proxies := []*url.URL{{Scheme: "http", Host: "10.0.0.9:8080"}}
	tr := Transport(proxies)

	u, err := tr.Proxy(httptest.NewRequest(http.MethodGet, "https://scholar.google.com", nil))
	if err != nil {
		t.Fatalf("Proxy() error = %v", err)
	}
	if u == nil || u.Host != "10.0.0.9:8080" {
		t.Errorf("Proxy() = %v, want the configured proxy", u)
	}
}
