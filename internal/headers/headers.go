// Package headers applies the forwarded-header policy (C8): a pure function
// of the client headers, client IP, TLS state, and the configured defaults
// (§4.8). It is grounded on the teacher's cloneHeader/addXFF/setXFHost
// helpers in internal/handler/gateway.go, with one deliberate divergence:
// the core contract does NOT strip hop-by-hop headers, so this package
// does not either.
package headers

import (
	"net"
	"net/http"

	"github.com/fabian4/edge-gateway/internal/model"
)

// Forward builds H' from the client headers H per §4.8. remoteAddr is the
// connection's RemoteAddr (host:port or host); isTLS reflects whether the
// listener terminated TLS for this request.
func Forward(h http.Header, remoteAddr, clientHost string, isTLS bool, policy model.HeaderPolicy) http.Header {
	out := clone(h)

	if policy.XForwarded {
		out.Set("X-Forwarded-For", appendClientIP(out.Get("X-Forwarded-For"), clientIP(remoteAddr)))
		out.Set("X-Forwarded-Host", clientHost)
		if isTLS {
			out.Set("X-Forwarded-Proto", "https")
		} else {
			out.Set("X-Forwarded-Proto", "http")
		}
	}

	if policy.PassHost {
		out.Set("Host", clientHost)
	} else {
		out.Del("Host")
	}

	return out
}

func clone(h http.Header) http.Header {
	out := make(http.Header, len(h))
	for k, vv := range h {
		cp := make([]string, len(vv))
		copy(cp, vv)
		out[k] = cp
	}
	return out
}

func appendClientIP(existing, ip string) string {
	if ip == "" {
		if existing != "" {
			return existing
		}
		return ""
	}
	if existing == "" {
		return ip
	}
	return existing + ", " + ip
}

func clientIP(remoteAddr string) string {
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
		return host
	}
	return remoteAddr
}
