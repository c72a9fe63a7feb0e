// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package proxy routes scraper traffic through rotating HTTP proxies.
// Implements: prd001-lookup (R2.5);
//
//	docs/ARCHITECTURE § Scraper egress.
package proxy

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
)

// freeProxyListURL serves plain-text host:port lines. Declared as a var
// so tests can substitute an httptest server.
var freeProxyListURL = "https://api.proxyscrape.com/v2/?request=displayproxies&protocol=http"

// Provider yields candidate proxy URLs for the scraper transport.
type Provider interface {
	Proxies(ctx context.Context) ([]*url.URL, error)
}

// Static serves a fixed address list, typically from the command line.
type Static struct {
	Addrs []string
}

func (s Static) Proxies(context.Context) ([]*url.URL, error) {
	urls := make([]*url.URL, 0, len(s.Addrs))
	for _, addr := range s.Addrs {
		u, err := parseProxyAddr(addr)
		if err != nil {
			return nil, err
		}
		urls = append(urls, u)
	}
	return urls, nil
}

// FreeList fetches a public plain-text proxy list. Entries on free
// lists churn quickly and many are dead, so malformed lines are skipped
// rather than failing the whole fetch.
type FreeList struct {
	Client *http.Client
}

func (f FreeList) Proxies(ctx context.Context) ([]*url.URL, error) {
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, freeProxyListURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating proxy list request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching proxy list: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("proxy list returned HTTP %d", resp.StatusCode)
	}

	var urls []*url.URL
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		u, err := parseProxyAddr(line)
		if err != nil {
			continue
		}
		urls = append(urls, u)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading proxy list: %w", err)
	}
	if len(urls) == 0 {
		return nil, errors.New("free proxy list returned no usable entries")
	}
	return urls, nil
}

func parseProxyAddr(addr string) (*url.URL, error) {
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	u, err := url.Parse(addr)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy address %q: %w", addr, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("invalid proxy address %q: missing host", addr)
	}
	return u, nil
}

// Rotator hands out proxies round-robin. Safe for concurrent use.
type Rotator struct {
	proxies []*url.URL
	next    atomic.Uint64
}

func NewRotator(proxies []*url.URL) *Rotator {
	return &Rotator{proxies: proxies}
}

// Proxy implements http.Transport.Proxy. An empty rotation means a
// direct connection.
func (r *Rotator) Proxy(*http.Request) (*url.URL, error) {
	if len(r.proxies) == 0 {
		return nil, nil
	}
	n := r.next.Add(1) - 1
	return r.proxies[int(n%uint64(len(r.proxies)))], nil
}

// Transport returns an http.Transport that cycles requests through the
// given proxies.
func Transport(proxies []*url.URL) *http.Transport {
	return &http.Transport{Proxy: NewRotator(proxies).Proxy}
}
