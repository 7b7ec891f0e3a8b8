package flags

import (
	"github.com/sirupsen/logrus"
	statsig "github.com/statsig-io/go-sdk"
)

// StatsigConfig configures the Statsig-backed flag provider.
type StatsigConfig struct {
	SecretKey   string
	Environment string
}

// StatsigProvider evaluates flags against Statsig. When no secret key is
// configured the provider stays uninitialized and every flag reads false.
type StatsigProvider struct {
	initialized bool
	log         *logrus.Entry
}

// NewStatsigProvider initializes the Statsig SDK. Initialization failures
// are not fatal; the provider degrades to all-flags-off.
func NewStatsigProvider(cfg StatsigConfig, log *logrus.Entry) *StatsigProvider {
	p := &StatsigProvider{log: log}
	if cfg.SecretKey == "" {
		log.Info("no Statsig secret key configured, feature flags disabled")
		return p
	}
	opts := &statsig.Options{}
	if cfg.Environment != "" {
		opts.Environment = statsig.Environment{Tier: cfg.Environment}
	}
	statsig.InitializeWithOptions(cfg.SecretKey, opts)
	p.initialized = true
	return p
}

// IsEnabled implements Provider.
func (p *StatsigProvider) IsEnabled(flag string, ctx Context) bool {
	if !p.initialized {
		return false
	}
	user := statsig.User{
		UserID: ctx.IntegrationID,
		Custom: map[string]interface{}{
			"clinicId": ctx.ClinicID,
		},
	}
	enabled := statsig.CheckGate(user, flag)
	p.log.WithFields(logrus.Fields{
		"flag":     flag,
		"clinicId": ctx.ClinicID,
		"enabled":  enabled,
	}).Debug("evaluated feature flag")
	return enabled
}

// Shutdown flushes pending Statsig events.
func (p *StatsigProvider) Shutdown() {
	if p.initialized {
		statsig.Shutdown()
	}
}
