package client

import (
	"time"

	"github.com/dermesser/brokerpc/internal/config"
	"github.com/dermesser/brokerpc/transport"
)

// OptionsFromSettings builds Options from a loaded settings module's
// client section, so a service doesn't have to hand-translate every
// field when constructing its own outbound Client.
func OptionsFromSettings(cs config.ClientSettings, factory transport.ClientFactory) Options {
	return Options{
		Factory:              factory,
		DefaultTimeout:       time.Duration(cs.DefaultTimeoutSec * float64(time.Second)),
		RaiseJobErrors:       cs.RaiseJobErrors,
		RaiseActionErrors:    cs.RaiseActionErrors,
		CatchTransportErrors: cs.CatchTransportErrs,
	}
}
