// Package router resolves (port, host, path) triples to a configured Rule
// in constant time, with exact keys taking precedence over the wildcard
// fallback at each level (§4.4).
package router

import (
	"strings"

	"github.com/fabian4/edge-gateway/internal/model"
)

// Table is the read-only routing table built once at startup. It is safe
// for concurrent use without locking (§5: "immutable after startup").
type Table struct {
	routes model.RoutingTable
}

func New(routes model.RoutingTable) *Table {
	return &Table{routes: routes}
}

// Resolve implements §4.4's algorithm. It returns the matched Rule along
// with the host-key and path-key that were actually used to reach it —
// the resolved keys, not the request's literal host/path — since those
// feed the upstream selector's cursor key (§4.7) and the rewrite contract
// (§4.6).
func (t *Table) Resolve(port int, host, path string) (rule model.Rule, hostKey, pathKey string, ok bool) {
	hostMap, found := t.routes[port]
	if !found {
		return model.Rule{}, "", "", false
	}

	h := strings.ToLower(hostOnly(host))
	pathMap, hk, found := lookupHost(hostMap, h)
	if !found {
		return model.Rule{}, "", "", false
	}

	rule, pk, found := lookupPath(pathMap, path)
	if !found {
		return model.Rule{}, "", "", false
	}
	return rule, hk, pk, true
}

func lookupHost(hostMap model.HostMap, host string) (model.PathMap, string, bool) {
	if pm, ok := hostMap[host]; ok {
		return pm, host, true
	}
	if pm, ok := hostMap[model.Wildcard]; ok {
		return pm, model.Wildcard, true
	}
	return nil, "", false
}

func lookupPath(pathMap model.PathMap, path string) (model.Rule, string, bool) {
	if r, ok := pathMap[path]; ok {
		return r, path, true
	}
	if r, ok := pathMap[model.Wildcard]; ok {
		return r, model.Wildcard, true
	}
	return model.Rule{}, "", false
}

// Paths returns the set union of every path-key configured across all
// host-maps for port. Used by external diagnostics/preview tooling, not by
// the dispatcher (§4.4).
func (t *Table) Paths(port int) []string {
	seen := map[string]struct{}{}
	for _, pm := range t.routes[port] {
		for pk := range pm {
			seen[pk] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for pk := range seen {
		out = append(out, pk)
	}
	return out
}

// HasPath reports whether any host-map for port resolves path exactly or
// via the wildcard fallback.
func (t *Table) HasPath(port int, path string) bool {
	for _, pm := range t.routes[port] {
		if _, ok := pm[path]; ok {
			return true
		}
		if _, ok := pm[model.Wildcard]; ok {
			return true
		}
	}
	return false
}

// FirstProxyInHost scans the host-map for port (exact host, else the
// wildcard host) and returns the first ProxyRule found, in map iteration
// order. Used only by the dispatcher's rewrite fallback (§4.6 Rewrite d),
// where the spec asks for "any" ProxyRule rather than a specific one.
func (t *Table) FirstProxyInHost(port int, host string) (model.Rule, bool) {
	hostMap, found := t.routes[port]
	if !found {
		return model.Rule{}, false
	}
	h := strings.ToLower(hostOnly(host))
	pathMap, ok := hostMap[h]
	if !ok {
		pathMap, ok = hostMap[model.Wildcard]
	}
	if !ok {
		return model.Rule{}, false
	}
	for _, rule := range pathMap {
		if rule.Type == model.RuleProxy {
			return rule, true
		}
	}
	return model.Rule{}, false
}

// Ports returns every port configured in the table.
func (t *Table) Ports() []int {
	out := make([]int, 0, len(t.routes))
	for p := range t.routes {
		out = append(out, p)
	}
	return out
}

func hostOnly(h string) string {
	if i := strings.IndexByte(h, ':'); i >= 0 {
		return h[:i]
	}
	return h
}
