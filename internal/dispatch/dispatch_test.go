package dispatch

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fabian4/edge-gateway/internal/model"
	"github.com/fabian4/edge-gateway/internal/router"
	"github.com/fabian4/edge-gateway/internal/selector"
	"github.com/fabian4/edge-gateway/internal/transport"
)

func proxyRule(targets ...string) model.Rule {
	return model.Rule{Type: model.RuleProxy, Proxy: &model.ProxyRule{Targets: targets}}
}

func newDispatcher(routes model.RoutingTable, defaults model.Defaults) *Dispatcher {
	return &Dispatcher{
		Routes:   router.New(routes),
		Cursors:  selector.New(),
		Pools:    transport.New(),
		Defaults: defaults,
	}
}

func TestProxy_ForwardsPathAndStreamsResponse(t *testing.T) {
	var seenPath, seenQuery string
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenPath = r.URL.Path
		seenQuery = r.URL.RawQuery
		w.Header().Set("X-Up", "ok")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("hi"))
	}))
	defer up.Close()

	d := newDispatcher(model.RoutingTable{
		80: model.HostMap{model.Wildcard: model.PathMap{model.Wildcard: proxyRule(up.URL)}},
	}, model.Defaults{})

	req := httptest.NewRequest(http.MethodGet, "http://gw.local/ping?x=1", nil)
	rr := httptest.NewRecorder()
	d.Handler(80, false).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if rr.Body.String() != "hi" {
		t.Fatalf("body = %q", rr.Body.String())
	}
	if seenPath != "/ping" || seenQuery != "x=1" {
		t.Fatalf("upstream saw path=%q query=%q", seenPath, seenQuery)
	}
	if rr.Header().Get("X-Up") != "ok" {
		t.Fatalf("upstream response header not forwarded back")
	}
}

func TestProxy_RoundRobinAcrossSequentialRequests(t *testing.T) {
	var seenByA, seenByB int
	a := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { seenByA++ }))
	defer a.Close()
	b := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { seenByB++ }))
	defer b.Close()

	d := newDispatcher(model.RoutingTable{
		80: model.HostMap{model.Wildcard: model.PathMap{model.Wildcard: proxyRule(a.URL, b.URL)}},
	}, model.Defaults{})

	for i := 0; i < 4; i++ {
		req := httptest.NewRequest(http.MethodGet, "http://gw.local/", nil)
		d.Handler(80, false).ServeHTTP(httptest.NewRecorder(), req)
	}
	if seenByA != 2 || seenByB != 2 {
		t.Fatalf("expected an even round-robin split, got a=%d b=%d", seenByA, seenByB)
	}
}

func TestProxy_UnreachableUpstreamReturns502(t *testing.T) {
	d := newDispatcher(model.RoutingTable{
		80: model.HostMap{model.Wildcard: model.PathMap{model.Wildcard: proxyRule("http://127.0.0.1:1")}},
	}, model.Defaults{})

	req := httptest.NewRequest(http.MethodGet, "http://gw.local/", nil)
	rr := httptest.NewRecorder()
	d.Handler(80, false).ServeHTTP(rr, req)
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rr.Code)
	}
}

func TestDispatch_NoRouteReturns404(t *testing.T) {
	d := newDispatcher(model.RoutingTable{
		80: model.HostMap{"app.example.com": model.PathMap{"/api": proxyRule("http://a")}},
	}, model.Defaults{})

	req := httptest.NewRequest(http.MethodGet, "http://gw.local/missing", nil)
	req.Host = "other.example.com"
	rr := httptest.NewRecorder()
	d.Handler(80, false).ServeHTTP(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rr.Code)
	}
}

func TestRedirect_StripPrefixAppendsRemainder(t *testing.T) {
	d := newDispatcher(model.RoutingTable{
		80: model.HostMap{model.Wildcard: model.PathMap{model.Wildcard: {
			Type:     model.RuleRedirect,
			Redirect: &model.RedirectRule{To: "https://cdn.example.com", StripPrefix: "/static", Status: http.StatusFound},
		}}},
	}, model.Defaults{})

	req := httptest.NewRequest(http.MethodGet, "http://gw.local/static/img.png", nil)
	rr := httptest.NewRecorder()
	d.Handler(80, false).ServeHTTP(rr, req)

	if rr.Code != http.StatusFound {
		t.Fatalf("status = %d, want 302", rr.Code)
	}
	if got := rr.Header().Get("Location"); got != "https://cdn.example.com/img.png" {
		t.Fatalf("Location = %q", got)
	}
}

func TestRedirect_StripPrefixEqualToFullURLYieldsNoSuffix(t *testing.T) {
	d := newDispatcher(model.RoutingTable{
		80: model.HostMap{model.Wildcard: model.PathMap{model.Wildcard: {
			Type:     model.RuleRedirect,
			Redirect: &model.RedirectRule{To: "https://cdn.example.com", StripPrefix: "/static", Status: http.StatusFound},
		}}},
	}, model.Defaults{})

	req := httptest.NewRequest(http.MethodGet, "http://gw.local/static", nil)
	rr := httptest.NewRecorder()
	d.Handler(80, false).ServeHTTP(rr, req)
	if got := rr.Header().Get("Location"); got != "https://cdn.example.com" {
		t.Fatalf("Location = %q, want no suffix", got)
	}
}

func TestRewrite_ExactReResolveForwardsOriginalURL(t *testing.T) {
	var seenPath string
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenPath = r.URL.Path
	}))
	defer up.Close()

	d := newDispatcher(model.RoutingTable{
		80: model.HostMap{model.Wildcard: model.PathMap{
			"/v1/widgets": proxyRule(up.URL),
			"/widgets":    {Type: model.RuleRewrite, Rewrite: &model.RewriteRule{To: "/v1"}},
		}},
	}, model.Defaults{})

	req := httptest.NewRequest(http.MethodGet, "http://gw.local/widgets", nil)
	rr := httptest.NewRecorder()
	d.Handler(80, false).ServeHTTP(rr, req)

	if seenPath != "/widgets" {
		t.Fatalf("exact re-resolve must forward the original URL, upstream saw %q", seenPath)
	}
}

func TestRewrite_FallbackScanForwardsRewrittenURL(t *testing.T) {
	var seenPath string
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenPath = r.URL.Path
	}))
	defer up.Close()

	d := newDispatcher(model.RoutingTable{
		80: model.HostMap{model.Wildcard: model.PathMap{
			"/other":   proxyRule(up.URL),
			"/widgets": {Type: model.RuleRewrite, Rewrite: &model.RewriteRule{To: "/v1"}},
		}},
	}, model.Defaults{})

	req := httptest.NewRequest(http.MethodGet, "http://gw.local/widgets", nil)
	rr := httptest.NewRecorder()
	d.Handler(80, false).ServeHTTP(rr, req)

	if seenPath != "/v1/widgets" {
		t.Fatalf("fallback scan must forward the rewritten URL, upstream saw %q", seenPath)
	}
}

func TestRewrite_NoRecursionFallsBackOnDoubleRewrite(t *testing.T) {
	d := newDispatcher(model.RoutingTable{
		80: model.HostMap{model.Wildcard: model.PathMap{
			"/a":   {Type: model.RuleRewrite, Rewrite: &model.RewriteRule{To: "/b"}},
			"/b/a": {Type: model.RuleRewrite, Rewrite: &model.RewriteRule{To: "/c"}},
		}},
	}, model.Defaults{})

	req := httptest.NewRequest(http.MethodGet, "http://gw.local/a", nil)
	rr := httptest.NewRecorder()
	d.Handler(80, false).ServeHTTP(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("double rewrite must not recurse, status = %d, want 404", rr.Code)
	}
}

func TestHeaderPolicy_XForwardedAndPassHostApplied(t *testing.T) {
	var seenHost, seenXFProto, seenXFHost string
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenHost = r.Host
		seenXFProto = r.Header.Get("X-Forwarded-Proto")
		seenXFHost = r.Header.Get("X-Forwarded-Host")
	}))
	defer up.Close()

	d := newDispatcher(model.RoutingTable{
		80: model.HostMap{model.Wildcard: model.PathMap{model.Wildcard: proxyRule(up.URL)}},
	}, model.Defaults{Headers: model.HeaderPolicy{XForwarded: true, PassHost: true}})

	req := httptest.NewRequest(http.MethodGet, "http://gw.local/", nil)
	req.Host = "api.example.com"
	rr := httptest.NewRecorder()
	d.Handler(80, false).ServeHTTP(rr, req)

	if seenHost != "api.example.com" {
		t.Fatalf("pass_host must preserve client Host, upstream saw %q", seenHost)
	}
	if seenXFProto != "http" {
		t.Fatalf("X-Forwarded-Proto = %q, want http", seenXFProto)
	}
	if seenXFHost != "api.example.com" {
		t.Fatalf("X-Forwarded-Host = %q", seenXFHost)
	}
}
