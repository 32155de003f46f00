package config

import "fmt"

// Diagnostic codes. See spec §4.3.
const (
	CodeInvalidJSON            = "INVALID_JSON"
	CodeInvalidPort            = "INVALID_PORT"
	CodeInvalidURL             = "INVALID_URL"
	CodeInvalidProtocol        = "INVALID_PROTOCOL"
	CodeMissingHostname        = "MISSING_HOSTNAME"
	CodeInvalidRuleType        = "INVALID_RULE_TYPE"
	CodeMissingRequiredField   = "MISSING_REQUIRED_FIELD"
	CodeEmptyTarget            = "EMPTY_TARGET"
	CodeInvalidRedirectStatus  = "INVALID_REDIRECT_STATUS"
	CodeShadowedHost           = "SHADOWED_HOST"
	CodeShadowedPath           = "SHADOWED_PATH"
	CodeEmptyConfig            = "EMPTY_CONFIG"
)

// Diagnostic locates one validator finding using the dotted/bracketed
// notation described in §4.3, e.g. "80.hosts.api.example.com./v1.to[1]".
type Diagnostic struct {
	Code    string
	Path    string
	Message string
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s at %s: %s", d.Code, d.Path, d.Message)
}

// Diagnostics accumulates every problem found in one validation pass; the
// load fails only if Errors is non-empty (§4.3, §7).
type Diagnostics struct {
	Errors   []Diagnostic
	Warnings []Diagnostic
}

func (d *Diagnostics) addError(code, path, msg string) {
	d.Errors = append(d.Errors, Diagnostic{Code: code, Path: path, Message: msg})
}

func (d *Diagnostics) addWarning(code, path, msg string) {
	d.Warnings = append(d.Warnings, Diagnostic{Code: code, Path: path, Message: msg})
}

// Valid reports whether the document is free of validator errors. It may
// still carry warnings.
func (d *Diagnostics) Valid() bool {
	return d == nil || len(d.Errors) == 0
}

func joinPath(base, seg string) string {
	if base == "" {
		return seg
	}
	return base + "." + seg
}

func indexPath(base string, i int) string {
	return fmt.Sprintf("%s[%d]", base, i)
}
