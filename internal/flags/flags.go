// Package flags provides runtime feature switches. The default provider is
// backed by Statsig; a nil or uninitialized provider evaluates every flag to
// false so mapping behavior stays deterministic without a flag service.
package flags

import (
	"os"
	"strings"
)

// GroupedTestResults switches result mapping from one test result per unit
// code to one test result per order code group.
const GroupedTestResults = "antech_v6_grouped_test_results"

// Context scopes a flag evaluation to one integration.
type Context struct {
	IntegrationID string
	ClinicID      string
}

// Provider evaluates feature flags.
type Provider interface {
	IsEnabled(flag string, ctx Context) bool
}

// Static is a fixed flag set, used in tests and as the disabled default.
type Static map[string]bool

// IsEnabled implements Provider.
func (s Static) IsEnabled(flag string, _ Context) bool {
	return s[flag]
}

// EnvProvider reads flags from environment variables: a flag is enabled when
// the upper-cased flag name holds "true" or "1".
type EnvProvider struct {
	lookup func(string) (string, bool)
}

// NewEnvProvider creates an environment-backed provider. lookup defaults to
// os.LookupEnv.
func NewEnvProvider(lookup func(string) (string, bool)) *EnvProvider {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	return &EnvProvider{lookup: lookup}
}

// IsEnabled implements Provider.
func (p *EnvProvider) IsEnabled(flag string, _ Context) bool {
	value, ok := p.lookup(strings.ToUpper(flag))
	if !ok {
		return false
	}
	return value == "true" || value == "1"
}
