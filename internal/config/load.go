package config

import (
	"fmt"

	"github.com/fabian4/edge-gateway/internal/model"
)

// Load parses raw config bytes (JSON, or YAML as a convenience superset)
// and returns the normalized ProxyConfig. It fails only when the validator
// reports at least one error (§7: "Configuration parse failure ... Process
// startup aborts"); warnings never fail the load.
func Load(data []byte) (*model.ProxyConfig, *Diagnostics, error) {
	doc, err := ParseDocument(data)
	if err != nil {
		diags := &Diagnostics{}
		diags.addError(CodeInvalidJSON, "", err.Error())
		return nil, diags, fmt.Errorf("config: %w", err)
	}
	cfg, diags := normalizeDocument(doc)
	if !diags.Valid() {
		return nil, diags, fmt.Errorf("config: %d validation error(s)", len(diags.Errors))
	}
	return cfg, diags, nil
}

// Validate runs the validator (C3) over raw config bytes and returns every
// diagnostic, independently of whether Load would ultimately succeed.
func Validate(data []byte) *Diagnostics {
	doc, err := ParseDocument(data)
	if err != nil {
		diags := &Diagnostics{}
		diags.addError(CodeInvalidJSON, "", err.Error())
		return diags
	}
	_, diags := normalizeDocument(doc)
	return diags
}
