package router

import (
	"testing"

	"github.com/fabian4/edge-gateway/internal/model"
)

func proxy(target string) model.Rule {
	return model.Rule{Type: model.RuleProxy, Proxy: &model.ProxyRule{Targets: []string{target}}}
}

func TestResolve_ExactBeatsWildcardAtBothLevels(t *testing.T) {
	table := New(model.RoutingTable{
		80: model.HostMap{
			"app.example.com": model.PathMap{
				"/api":         proxy("http://api:9000"),
				model.Wildcard: proxy("http://web:3000"),
			},
			model.Wildcard: model.PathMap{
				model.Wildcard: proxy("http://fallback:1"),
			},
		},
	})

	rule, hk, pk, ok := table.Resolve(80, "app.example.com", "/api")
	if !ok || rule.Proxy.Targets[0] != "http://api:9000" || hk != "app.example.com" || pk != "/api" {
		t.Fatalf("want exact host+path, got %+v hk=%s pk=%s ok=%v", rule, hk, pk, ok)
	}

	rule, hk, pk, ok = table.Resolve(80, "app.example.com", "/anything")
	if !ok || rule.Proxy.Targets[0] != "http://web:3000" || pk != model.Wildcard {
		t.Fatalf("want wildcard path fallback, got %+v hk=%s pk=%s", rule, hk, pk)
	}

	rule, hk, pk, ok = table.Resolve(80, "other.example.com", "/x")
	if !ok || rule.Proxy.Targets[0] != "http://fallback:1" || hk != model.Wildcard {
		t.Fatalf("want wildcard host fallback, got %+v hk=%s pk=%s", rule, hk, pk)
	}
}

func TestResolve_HostHeaderPortStrippedAndCaseInsensitive(t *testing.T) {
	table := New(model.RoutingTable{
		80: model.HostMap{
			"app.example.com": model.PathMap{model.Wildcard: proxy("http://a")},
		},
	})
	_, hk, _, ok := table.Resolve(80, "APP.Example.COM:8080", "/x")
	if !ok || hk != "app.example.com" {
		t.Fatalf("host matching must be case-insensitive and port-stripped, got ok=%v hk=%s", ok, hk)
	}
}

func TestResolve_UnknownPortOrHostOrPathReturnsNotOK(t *testing.T) {
	table := New(model.RoutingTable{
		80: model.HostMap{model.Wildcard: model.PathMap{"/only": proxy("http://a")}},
	})
	if _, _, _, ok := table.Resolve(81, "x", "/only"); ok {
		t.Fatalf("unknown port must not resolve")
	}
	if _, _, _, ok := table.Resolve(80, "x", "/missing"); ok {
		t.Fatalf("unmatched path with no wildcard must not resolve")
	}
}

func TestPathsAndHasPath(t *testing.T) {
	table := New(model.RoutingTable{
		80: model.HostMap{
			"a.example.com": model.PathMap{"/foo": proxy("http://a")},
			"b.example.com": model.PathMap{"/bar": proxy("http://b"), model.Wildcard: proxy("http://c")},
		},
	})
	paths := table.Paths(80)
	if len(paths) != 3 {
		t.Fatalf("want 3 distinct path-keys, got %v", paths)
	}
	if !table.HasPath(80, "/foo") {
		t.Fatalf("expected /foo reachable")
	}
	if !table.HasPath(80, "/anything") { // b.example.com has a wildcard
		t.Fatalf("expected wildcard fallback to count as reachable")
	}
}
