// Package dispatch implements the per-request state machine (C6): resolve
// a rule via the router, then dispatch on its variant — proxy, redirect,
// or rewrite — mapping failures to the status codes §4.6/§7 specify. It is
// grounded on the teacher's internal/handler/gateway.go ServeHTTP, with the
// service/load-balancer plumbing replaced by the router's resolved Rule and
// the selector's round-robin cursor.
package dispatch

import (
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/fabian4/edge-gateway/internal/headers"
	"github.com/fabian4/edge-gateway/internal/metrics"
	"github.com/fabian4/edge-gateway/internal/model"
	"github.com/fabian4/edge-gateway/internal/router"
	"github.com/fabian4/edge-gateway/internal/selector"
	"github.com/fabian4/edge-gateway/internal/transport"
)

// Dispatcher holds the process-wide, immutable-after-startup pieces every
// request needs: the routing table, the mutable round-robin cursors, the
// upstream connection pools, and the header-policy defaults (§5).
type Dispatcher struct {
	Routes    *router.Table
	Cursors   *selector.Cursors
	Pools     *transport.Pools
	Defaults  model.Defaults
	AccessLog io.Writer
	Metrics   *metrics.Registry
}

// Handler returns the http.Handler a listener binds for one port. isTLS
// reflects whether that listener terminates TLS, which only matters for
// the X-Forwarded-Proto value (§4.8).
func (d *Dispatcher) Handler(port int, isTLS bool) http.Handler {
	return &portHandler{d: d, port: port, isTLS: isTLS}
}

type portHandler struct {
	d     *Dispatcher
	port  int
	isTLS bool
}

func (h *portHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	lw := &loggingResponseWriter{ResponseWriter: w}

	hostRaw := r.Host
	if hostRaw == "" {
		hostRaw = model.Wildcard
	}

	var hostKey, pathKey, ruleType string
	var upstream string
	defer func() {
		writeAccessLog(h.d.AccessLog, AccessLog{
			Time:         start,
			Method:       r.Method,
			Path:         r.URL.Path,
			Protocol:     r.Proto,
			Status:       lw.status(),
			DurationMS:   time.Since(start).Milliseconds(),
			RemoteIP:     r.RemoteAddr,
			Port:         h.port,
			HostKey:      hostKey,
			PathKey:      pathKey,
			RuleType:     ruleType,
			Upstream:     upstream,
			BytesWritten: lw.bytes,
		})
		if h.d.Metrics != nil {
			h.d.Metrics.ObserveRequest(h.port, ruleType, lw.status(), time.Since(start))
		}
	}()

	rule, hk, pk, ok := h.d.Routes.Resolve(h.port, hostRaw, r.URL.Path)
	if !ok {
		http.Error(lw, "Not Found", http.StatusNotFound)
		return
	}
	hostKey, pathKey, ruleType = hk, pk, string(rule.Type)

	switch rule.Type {
	case model.RuleProxy:
		key := selector.Key{Port: h.port, HostKey: hk, PathKey: pk}
		target := h.d.Cursors.Next(key, rule.Proxy.Targets)
		upstream = target
		h.d.forwardTo(lw, r, target, h.port, r.URL.RequestURI(), hostRaw, h.isTLS)
	case model.RuleRedirect:
		dispatchRedirect(lw, r, rule.Redirect)
	case model.RuleRewrite:
		upstream = h.d.rewrite(lw, r, h.port, hostRaw, rule.Rewrite, h.isTLS)
	default:
		http.Error(lw, "Internal Server Error", http.StatusInternalServerError)
	}
}

// forwardTo implements the network half of §4.6's Proxy variant once a
// target has already been chosen — by the selector for an ordinary proxy
// rule, or as "the first target" for the rewrite fallback scan (§4.6
// Rewrite d), which never touches cursor state.
func (d *Dispatcher) forwardTo(w http.ResponseWriter, r *http.Request, target string, port int, requestURI, hostRaw string, isTLS bool) {
	upstreamURL, err := url.Parse(target)
	if err != nil {
		log.Printf("dispatch: invalid upstream target %q: %v", target, err)
		http.Error(w, "Bad Gateway", http.StatusBadGateway)
		return
	}

	full, err := url.Parse(requestURI)
	if err != nil {
		http.Error(w, "Bad Gateway", http.StatusBadGateway)
		return
	}
	outURL := *upstreamURL
	outURL.Path = joinPath(upstreamURL.Path, full.Path)
	outURL.RawPath = ""
	outURL.RawQuery = full.RawQuery

	fwdHeaders := headers.Forward(r.Header, r.RemoteAddr, hostRaw, isTLS, d.Defaults.Headers)

	outReq, err := http.NewRequestWithContext(r.Context(), r.Method, outURL.String(), r.Body)
	if err != nil {
		http.Error(w, "Bad Gateway", http.StatusBadGateway)
		return
	}
	outReq.Header = fwdHeaders
	if d.Defaults.Headers.PassHost {
		outReq.Host = hostOf(hostRaw)
	} else {
		outReq.Host = upstreamURL.Host
	}

	rt := d.Pools.Get(upstreamURL.Scheme, upstreamURL.Host)
	if d.Metrics != nil {
		d.Metrics.IncActiveUpstream(port)
		defer d.Metrics.DecActiveUpstream(port)
	}

	resp, err := rt.RoundTrip(outReq)
	if err != nil {
		log.Printf("dispatch: upstream error for %s: %v", target, err)
		http.Error(w, "Bad Gateway", http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	copyHeaders(w.Header(), resp.Header)
	if len(resp.Trailer) > 0 {
		trailerKeys := make([]string, 0, len(resp.Trailer))
		for k := range resp.Trailer {
			trailerKeys = append(trailerKeys, k)
		}
		w.Header().Set("Trailer", strings.Join(trailerKeys, ","))
	}

	w.WriteHeader(resp.StatusCode)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	_, _ = io.Copy(w, resp.Body)

	for k, vv := range resp.Trailer {
		for _, v := range vv {
			w.Header().Add(k, v)
		}
	}
}

// dispatchRedirect implements §4.6's Redirect variant. The request body
// is never read.
func dispatchRedirect(w http.ResponseWriter, r *http.Request, rule *model.RedirectRule) {
	u := r.URL.RequestURI()
	location := rule.To
	if rule.StripPrefix != "" && strings.HasPrefix(u, rule.StripPrefix) {
		location = rule.To + u[len(rule.StripPrefix):]
	}
	w.Header().Set("Location", location)
	w.WriteHeader(rule.Status)
}

// rewrite implements §4.6's Rewrite variant, including the re-resolution
// URL contract described in §4.6/§9: a successful re-resolve to a
// ProxyRule forwards the client's original URL; a fallback scan forwards
// the rewritten URL using its first target, bypassing the round-robin
// cursor entirely (§4.6 Rewrite d).
func (d *Dispatcher) rewrite(w http.ResponseWriter, r *http.Request, port int, hostRaw string, rule *model.RewriteRule, isTLS bool) string {
	originalURI := r.URL.RequestURI()
	rewrittenPath := rule.To + r.URL.Path
	rewrittenURI := rule.To + originalURI

	reRule, hk, pk, ok := d.Routes.Resolve(port, hostRaw, rewrittenPath)
	if ok && reRule.Type == model.RuleProxy {
		key := selector.Key{Port: port, HostKey: hk, PathKey: pk}
		target := d.Cursors.Next(key, reRule.Proxy.Targets)
		d.forwardTo(w, r, target, port, originalURI, hostRaw, isTLS)
		return target
	}

	fallback, found := d.Routes.FirstProxyInHost(port, hostRaw)
	if !found || len(fallback.Proxy.Targets) == 0 {
		http.Error(w, "Not Found", http.StatusNotFound)
		return ""
	}
	target := fallback.Proxy.Targets[0]
	d.forwardTo(w, r, target, port, rewrittenURI, hostRaw, isTLS)
	return target
}

func joinPath(base, reqPath string) string {
	if base == "" || base == "/" {
		if reqPath == "" {
			return "/"
		}
		return reqPath
	}
	bs := strings.HasSuffix(base, "/")
	rs := strings.HasPrefix(reqPath, "/")
	switch {
	case bs && rs:
		return base + reqPath[1:]
	case !bs && !rs:
		return base + "/" + reqPath
	default:
		return base + reqPath
	}
}

func hostOf(hostRaw string) string {
	if i := strings.IndexByte(hostRaw, ':'); i >= 0 {
		return hostRaw[:i]
	}
	return hostRaw
}

func copyHeaders(dst, src http.Header) {
	for k, vv := range src {
		dst.Del(k)
		for _, v := range vv {
			dst.Add(k, v)
		}
	}
}
