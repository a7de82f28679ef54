package client

import (
	"testing"
	"time"

	"github.com/dermesser/brokerpc/internal/config"
)

func TestOptionsFromSettings(t *testing.T) {
	cs := config.ClientSettings{
		DefaultTimeoutSec: 2.5,
		RaiseJobErrors:    true,
		RaiseActionErrors: true,
	}
	opts := OptionsFromSettings(cs, nil)
	if opts.DefaultTimeout != 2500*time.Millisecond {
		t.Fatalf("unexpected timeout: %s", opts.DefaultTimeout)
	}
	if !opts.RaiseJobErrors || !opts.RaiseActionErrors {
		t.Fatal("expected raise flags to carry through")
	}
	if opts.CatchTransportErrors {
		t.Fatal("expected catch_transport_errors to default false")
	}
}
