package conn

import (
	"context"
	"math"
	"testing"

	"github.com/corvid-labs/modelwire/dispatch"
	"github.com/corvid-labs/modelwire/registry"
	"github.com/corvid-labs/modelwire/wire"
)

func TestStateString(t *testing.T) {
	cases := map[State]string{StateIdle: "Idle", StatePending: "Pending", StateActive: "Active"}
	for s, want := range cases {
		if got := s.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", s, got, want)
		}
	}
}

func TestNextBackoffGrowsThenCaps(t *testing.T) {
	v := backoffBase
	for i := 0; i < 3; i++ {
		v = nextBackoff(v)
	}
	want := backoffBase * math.Pow(backoffMult, 3)
	if math.Abs(v-want) > 0.001 {
		t.Errorf("after 3 steps = %v, want %v", v, want)
	}

	v = backoffCap
	for i := 0; i < 5; i++ {
		v = nextBackoff(v)
		if v != backoffCap {
			t.Fatalf("backoff exceeded cap: %v", v)
		}
	}
}

func TestConfigWithDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	if cfg.SilenceTimeout != defaultSilenceTimeout {
		t.Errorf("SilenceTimeout = %v, want %v", cfg.SilenceTimeout, defaultSilenceTimeout)
	}
	if cfg.StateSilenceTimeout != defaultStateSilenceTimeout {
		t.Errorf("StateSilenceTimeout = %v, want %v", cfg.StateSilenceTimeout, defaultStateSilenceTimeout)
	}
	if cfg.LoginTimeout != defaultLoginTimeout {
		t.Errorf("LoginTimeout = %v, want %v", cfg.LoginTimeout, defaultLoginTimeout)
	}
	if cfg.Logger == nil {
		t.Error("expected a default logger to be set")
	}
}

func TestSendFailsWhenNotConnected(t *testing.T) {
	disp := dispatch.New(registry.New(), nil, "example.test", nil)
	m := New(Config{}, disp)

	err := m.Send(context.Background(), wire.Frame{FCType: wire.FCTypeNULL})
	if err == nil {
		t.Fatal("expected Send to fail with no active transport")
	}
}

func TestHostSelectsAltHostWhenCamYou(t *testing.T) {
	disp := dispatch.New(registry.New(), nil, "example.test", nil)
	m := New(Config{Host: "primary.test", AltHost: "alt.test", CamYou: true}, disp)
	if got := m.host(); got != "alt.test" {
		t.Errorf("host() = %q, want alt.test", got)
	}

	m2 := New(Config{Host: "primary.test", AltHost: "alt.test", CamYou: false}, disp)
	if got := m2.host(); got != "primary.test" {
		t.Errorf("host() = %q, want primary.test", got)
	}
}

func TestDisconnectIsIdempotentWhenNeverConnected(t *testing.T) {
	disp := dispatch.New(registry.New(), nil, "example.test", nil)
	m := New(Config{}, disp)
	m.Disconnect()
	m.Disconnect()
	if m.State() != StateIdle {
		t.Errorf("State() = %v, want Idle", m.State())
	}
}
