package config

import (
	"strings"
)

// IsolationPolicy restricts a set of hosts to image delivery only. Domains is
// one host per line; "*.example.com" matches any subdomain.
type IsolationPolicy struct {
	Enabled bool   `json:"enabled"`
	Domains string `json:"domains"`
}

// Hosts returns the non-empty, trimmed domain lines.
func (p IsolationPolicy) Hosts() []string {
	var hosts []string
	for _, line := range strings.Split(p.Domains, "\n") {
		if h := strings.TrimSpace(line); h != "" {
			hosts = append(hosts, h)
		}
	}
	return hosts
}

// Matches reports whether host (with or without port) is an isolation domain.
func (p IsolationPolicy) Matches(host string) bool {
	if !p.Enabled {
		return false
	}
	host = strings.ToLower(stripPort(host))
	for _, d := range p.Hosts() {
		d = strings.ToLower(d)
		if suffix, ok := strings.CutPrefix(d, "*."); ok {
			if strings.HasSuffix(host, "."+suffix) {
				return true
			}
			continue
		}
		if host == d {
			return true
		}
	}
	return false
}

// PublicBaseURL returns "<proto>://<first domain>" when the policy is enabled
// and names a concrete (non-wildcard) first domain. Public links prefer it
// over the request host.
func (p IsolationPolicy) PublicBaseURL(proto string) (string, bool) {
	if !p.Enabled {
		return "", false
	}
	hosts := p.Hosts()
	if len(hosts) == 0 || strings.HasPrefix(hosts[0], "*.") {
		return "", false
	}
	if proto == "" {
		proto = "https"
	}
	return proto + "://" + hosts[0], true
}

func stripPort(host string) string {
	if strings.HasPrefix(host, "[") {
		if i := strings.Index(host, "]"); i >= 0 {
			return host[1:i]
		}
		return host
	}
	if i := strings.LastIndexByte(host, ':'); i >= 0 && strings.Count(host, ":") == 1 {
		return host[:i]
	}
	return host
}
