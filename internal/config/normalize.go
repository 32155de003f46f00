package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/fabian4/edge-gateway/internal/model"
)

// normalizeDocument is the shared C2/C3 walk: it produces the normalized
// ProxyConfig and the full diagnostics set in one pass over the document,
// so the validator's findings are always consistent with what the loader
// would have built (§4.3 runs "independently of the loader" in the sense
// that it reports every problem, not that it re-walks the tree separately).
func normalizeDocument(doc *Node) (*model.ProxyConfig, *Diagnostics) {
	diags := &Diagnostics{}
	cfg := &model.ProxyConfig{
		Routes: model.RoutingTable{},
		TLS:    map[int]model.TLSMaterial{},
	}

	if doc == nil || doc.Kind == KindNull {
		diags.addWarning(CodeEmptyConfig, "", "document contains no port entries")
		return cfg, diags
	}
	if !doc.IsObject() {
		diags.addError(CodeInvalidJSON, "", "top-level document must be an object")
		return cfg, diags
	}

	portCount := 0
	for _, e := range doc.Entries {
		if e.Key == model.KeyDefaults {
			cfg.Defaults = normalizeDefaults(e.Value)
			continue
		}
		port, ok := parsePort(e.Key)
		if !ok {
			diags.addError(CodeInvalidPort, e.Key, fmt.Sprintf("port key %q must be a decimal integer in [1,65535]", e.Key))
			continue
		}
		portCount++
		normalizePort(cfg, diags, port, e.Key, e.Value)
	}
	if portCount == 0 {
		diags.addWarning(CodeEmptyConfig, "", "document contains no port entries (only __defaults or nothing)")
	}
	return cfg, diags
}

func parsePort(key string) (int, bool) {
	if key == "" {
		return 0, false
	}
	for _, c := range key {
		if c < '0' || c > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(key)
	if err != nil || n < 1 || n > 65535 {
		return 0, false
	}
	return n, true
}

// normalizePort handles the three port-value shapes of §4.2: a bare
// origin-URL string, an object carrying "hosts" (+ optional "tls"), or an
// object of bare path-keys (+ optional "tls") standing in for a single
// wildcard host.
func normalizePort(cfg *model.ProxyConfig, diags *Diagnostics, port int, portKey string, node *Node) {
	if node.IsString() {
		s, _ := node.AsString()
		if rule, ok := buildProxyRuleFromTo(diags, portKey, &Node{Kind: KindString, Str: s}, nil); ok {
			cfg.Routes[port] = model.HostMap{model.Wildcard: model.PathMap{model.Wildcard: rule}}
		}
		return
	}
	if !node.IsObject() {
		diags.addError(CodeInvalidURL, portKey, "port entry must be a string, or an object with hosts or path keys")
		return
	}

	var tlsNode *Node
	var hostsNode *Node
	hasHosts := false
	for _, e := range node.Entries {
		switch e.Key {
		case model.KeyTLS:
			tlsNode = e.Value
		case model.KeyHosts:
			hostsNode = e.Value
			hasHosts = true
		}
	}
	if tlsNode != nil {
		if mat, ok := normalizeTLS(diags, joinPath(portKey, model.KeyTLS), tlsNode); ok {
			cfg.TLS[port] = mat
		}
	}

	if hasHosts {
		if !hostsNode.IsObject() {
			diags.addError(CodeInvalidURL, joinPath(portKey, model.KeyHosts), `"hosts" must be an object`)
			return
		}
		if hm := normalizeHostMap(diags, joinPath(portKey, model.KeyHosts), hostsNode); len(hm) > 0 {
			cfg.Routes[port] = hm
		}
		return
	}

	// Path-only shape: the remaining entries (minus "tls") are the single
	// wildcard host's path map.
	if pm := normalizePathMap(diags, portKey, node, true); len(pm) > 0 {
		cfg.Routes[port] = model.HostMap{model.Wildcard: pm}
	}
}

func normalizeHostMap(diags *Diagnostics, path string, hostsNode *Node) model.HostMap {
	hm := model.HostMap{}
	sawWildcard := false
	for _, e := range hostsNode.Entries {
		hostKey := e.Key
		if hostKey != model.Wildcard && sawWildcard {
			diags.addWarning(CodeShadowedHost, joinPath(path, model.Wildcard), "wildcard host-key appears before "+hostKey+" in document order")
		}
		if hostKey == model.Wildcard {
			sawWildcard = true
		}
		hostPath := joinPath(path, hostKey)

		var pm model.PathMap
		switch {
		case e.Value.IsString():
			s, _ := e.Value.AsString()
			if rule, ok := buildProxyRuleFromTo(diags, hostPath, &Node{Kind: KindString, Str: s}, nil); ok {
				pm = model.PathMap{model.Wildcard: rule}
			}
		case e.Value.IsObject():
			pm = normalizePathMap(diags, hostPath, e.Value, false)
		default:
			diags.addError(CodeMissingRequiredField, hostPath, "host-config must be a string (URL) or an object of path-keys")
		}
		if len(pm) > 0 {
			hm[hostKey] = pm
		}
	}
	return hm
}

func normalizePathMap(diags *Diagnostics, path string, node *Node, filterReserved bool) model.PathMap {
	pm := model.PathMap{}
	sawWildcard := false
	for _, e := range node.Entries {
		key := e.Key
		if filterReserved && (key == model.KeyTLS || key == model.KeyHosts) {
			continue
		}
		if key != model.Wildcard && sawWildcard {
			diags.addWarning(CodeShadowedPath, joinPath(path, model.Wildcard), "wildcard path-key appears before "+key+" in document order")
		}
		if key == model.Wildcard {
			sawWildcard = true
		}
		if rule, ok := normalizeRule(diags, joinPath(path, key), e.Value); ok {
			pm[key] = rule
		}
	}
	return pm
}

// normalizeRule normalizes one rule-config slot: a bare URL string, or a
// {type, to, ...} object. Unknown type, missing "to", or empty "to" all
// cause the rule to be omitted (reported as an error, never inserted into
// the routing table) — see §4.2.
func normalizeRule(diags *Diagnostics, path string, ruleNode *Node) (model.Rule, bool) {
	if ruleNode.IsString() {
		s, _ := ruleNode.AsString()
		return buildProxyRuleFromTo(diags, path, &Node{Kind: KindString, Str: s}, nil)
	}
	if !ruleNode.IsObject() {
		diags.addError(CodeMissingRequiredField, path, "rule must be a string or an object")
		return model.Rule{}, false
	}

	typeStr := string(model.RuleProxy)
	if tNode, ok := ruleNode.Get("type"); ok {
		s, isStr := tNode.AsString()
		if !isStr {
			diags.addError(CodeInvalidRuleType, joinPath(path, "type"), "type must be a string")
			return model.Rule{}, false
		}
		typeStr = s
	}

	switch typeStr {
	case string(model.RuleProxy):
		toNode, hasTo := ruleNode.Get("to")
		if !hasTo {
			diags.addError(CodeMissingRequiredField, path, `proxy rule missing required field "to"`)
			return model.Rule{}, false
		}
		hcNode, _ := ruleNode.Get("health_check")
		return buildProxyRuleFromTo(diags, path, toNode, hcNode)
	case string(model.RuleRedirect):
		return buildRedirectRule(diags, path, ruleNode)
	case string(model.RuleRewrite):
		return buildRewriteRule(diags, path, ruleNode)
	default:
		diags.addError(CodeInvalidRuleType, joinPath(path, "type"), fmt.Sprintf("unknown rule type %q", typeStr))
		return model.Rule{}, false
	}
}

func buildProxyRuleFromTo(diags *Diagnostics, path string, toNode, hcNode *Node) (model.Rule, bool) {
	var raw []string
	switch {
	case toNode.IsString():
		s, _ := toNode.AsString()
		raw = []string{s}
	case toNode.IsArray():
		for i, item := range toNode.Items {
			s, ok := item.AsString()
			if !ok {
				diags.addError(CodeInvalidURL, indexPath(joinPath(path, "to"), i), "target must be a string")
				return model.Rule{}, false
			}
			raw = append(raw, s)
		}
	default:
		diags.addError(CodeMissingRequiredField, joinPath(path, "to"), `"to" must be a string or an array of strings`)
		return model.Rule{}, false
	}

	if len(raw) == 0 {
		diags.addError(CodeEmptyTarget, joinPath(path, "to"), "target sequence is empty")
		return model.Rule{}, false
	}

	ok := true
	for i, t := range raw {
		tp := indexPath(joinPath(path, "to"), i)
		if t == "" {
			diags.addError(CodeEmptyTarget, tp, "target is empty")
			ok = false
			continue
		}
		if !validateOriginURL(diags, tp, t) {
			ok = false
		}
	}
	if !ok {
		return model.Rule{}, false
	}

	return model.Rule{
		Type: model.RuleProxy,
		Proxy: &model.ProxyRule{
			Targets:     raw,
			HealthCheck: toGoValue(hcNode),
		},
	}, true
}

func buildRedirectRule(diags *Diagnostics, path string, ruleNode *Node) (model.Rule, bool) {
	toNode, hasTo := ruleNode.Get("to")
	if !hasTo {
		diags.addError(CodeMissingRequiredField, path, `redirect rule missing required field "to"`)
		return model.Rule{}, false
	}
	to, isStr := toNode.AsString()
	if !isStr {
		diags.addError(CodeMissingRequiredField, joinPath(path, "to"), `"to" must be a string`)
		return model.Rule{}, false
	}
	if to == "" {
		diags.addError(CodeEmptyTarget, joinPath(path, "to"), "target is empty")
		return model.Rule{}, false
	}
	if !strings.HasPrefix(to, "/") {
		if !validateOriginURL(diags, joinPath(path, "to"), to) {
			return model.Rule{}, false
		}
	}

	status := 302
	if sNode, ok := ruleNode.Get("status"); ok {
		if i, isNum := sNode.AsInt(); isNum {
			status = i
		} else {
			diags.addWarning(CodeInvalidRedirectStatus, joinPath(path, "status"), "status must be an integer; keeping default 302")
			status = 302
		}
	}
	switch status {
	case 301, 302, 307, 308:
	default:
		diags.addWarning(CodeInvalidRedirectStatus, joinPath(path, "status"), fmt.Sprintf("status %d is not one of 301, 302, 307, 308", status))
	}

	stripPrefix := ""
	if spNode, ok := ruleNode.Get("strip_prefix"); ok {
		if s, isStr := spNode.AsString(); isStr {
			stripPrefix = s
		}
	}

	return model.Rule{
		Type: model.RuleRedirect,
		Redirect: &model.RedirectRule{
			To:          to,
			StripPrefix: stripPrefix,
			Status:      status,
		},
	}, true
}

func buildRewriteRule(diags *Diagnostics, path string, ruleNode *Node) (model.Rule, bool) {
	toNode, hasTo := ruleNode.Get("to")
	if !hasTo {
		diags.addError(CodeMissingRequiredField, path, `rewrite rule missing required field "to"`)
		return model.Rule{}, false
	}
	to, isStr := toNode.AsString()
	if !isStr {
		diags.addError(CodeMissingRequiredField, joinPath(path, "to"), `"to" must be a string`)
		return model.Rule{}, false
	}
	if to == "" {
		diags.addError(CodeEmptyTarget, joinPath(path, "to"), "target is empty")
		return model.Rule{}, false
	}
	if !strings.HasPrefix(to, "/") {
		diags.addError(CodeInvalidURL, joinPath(path, "to"), `rewrite "to" must begin with "/"`)
		return model.Rule{}, false
	}
	return model.Rule{Type: model.RuleRewrite, Rewrite: &model.RewriteRule{To: to}}, true
}

func validateOriginURL(diags *Diagnostics, path, raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		diags.addError(CodeInvalidURL, path, fmt.Sprintf("invalid URL: %v", err))
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		diags.addError(CodeInvalidProtocol, path, fmt.Sprintf("scheme %q must be http or https", u.Scheme))
		return false
	}
	if u.Hostname() == "" {
		diags.addError(CodeMissingHostname, path, "URL has no hostname")
		return false
	}
	return true
}

func normalizeTLS(diags *Diagnostics, path string, tlsNode *Node) (model.TLSMaterial, bool) {
	certNode, hasCert := tlsNode.Get("cert")
	keyNode, hasKey := tlsNode.Get("key")
	if !hasCert || !certNode.IsString() {
		diags.addError(CodeMissingRequiredField, joinPath(path, "cert"), `tls block missing required field "cert"`)
		return model.TLSMaterial{}, false
	}
	if !hasKey || !keyNode.IsString() {
		diags.addError(CodeMissingRequiredField, joinPath(path, "key"), `tls block missing required field "key"`)
		return model.TLSMaterial{}, false
	}
	cert, _ := certNode.AsString()
	key, _ := keyNode.AsString()
	mat := model.TLSMaterial{CertFile: cert, KeyFile: key}
	if caNode, ok := tlsNode.Get("ca"); ok {
		if ca, isStr := caNode.AsString(); isStr {
			mat.CAFile = ca
		}
	}
	return mat, true
}

func normalizeDefaults(node *Node) model.Defaults {
	var d model.Defaults
	if !node.IsObject() {
		return d
	}
	if hdrs, ok := node.Get("headers"); ok && hdrs.IsObject() {
		if xf, ok := hdrs.Get("x_forwarded"); ok {
			if b, isBool := xf.AsBool(); isBool {
				d.Headers.XForwarded = b
			}
		}
		if ph, ok := hdrs.Get("pass_host"); ok {
			if b, isBool := ph.AsBool(); isBool {
				d.Headers.PassHost = b
			}
		}
	}
	if t, ok := node.Get("timeout_ms"); ok {
		if i, isNum := t.AsInt(); isNum {
			d.TimeoutMS = i
		}
	}
	if r, ok := node.Get("retries"); ok && r.IsObject() {
		if a, ok := r.Get("attempts"); ok {
			if i, isNum := a.AsInt(); isNum {
				d.Retries.Attempts = i
			}
		}
		if b, ok := r.Get("backoff_ms"); ok {
			if i, isNum := b.AsInt(); isNum {
				d.Retries.BackoffMS = i
			}
		}
	}
	return d
}

// toGoValue converts a Node back into a generic Go value, used only to
// preserve the opaque health_check field verbatim (§3: "accepted and
// preserved but not acted on by the core").
func toGoValue(n *Node) any {
	if n == nil {
		return nil
	}
	switch n.Kind {
	case KindNull:
		return nil
	case KindString:
		return n.Str
	case KindBool:
		return n.Bool
	case KindNumber:
		if f, err := n.Num.Float64(); err == nil {
			return f
		}
		return n.Num.String()
	case KindArray:
		out := make([]any, len(n.Items))
		for i, item := range n.Items {
			out[i] = toGoValue(item)
		}
		return out
	case KindObject:
		out := make(map[string]any, len(n.Entries))
		for _, e := range n.Entries {
			out[e.Key] = toGoValue(e.Value)
		}
		return out
	default:
		return nil
	}
}
