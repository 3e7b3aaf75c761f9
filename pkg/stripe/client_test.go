package stripe

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/angelmondragon/marketcore-backend/pkg/config"
	"github.com/angelmondragon/marketcore-backend/pkg/logger"
)

func TestParseMode(t *testing.T) {
	cases := map[string]Mode{"": ModeTest, "TEST": ModeTest, " live ": ModeLive}
	for raw, want := range cases {
		got, err := ParseMode(raw)
		if err != nil || got != want {
			t.Fatalf("ParseMode(%q) = %q, %v", raw, got, err)
		}
	}
	if _, err := ParseMode("sandbox"); err == nil {
		t.Fatalf("expected error for unknown mode")
	}
}

func TestNewClientValidatesCredentials(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	ctx := context.Background()

	tests := []struct {
		name    string
		cfg     config.StripeConfig
		wantErr error
		fails   bool
	}{
		{name: "missing key", cfg: config.StripeConfig{Secret: "whsec_x"}, wantErr: ErrAPIKeyRequired},
		{name: "missing secret", cfg: config.StripeConfig{APIKey: "sk_test_abc"}, wantErr: ErrSigningSecretRequired},
		{name: "live key in test mode", cfg: config.StripeConfig{APIKey: "sk_live_abc", Secret: "whsec_x"}, fails: true},
		{name: "test key in live mode", cfg: config.StripeConfig{APIKey: "rk_test_abc", Secret: "whsec_x", Env: "live"}, fails: true},
		{name: "restricted test key", cfg: config.StripeConfig{APIKey: "rk_test_abc", Secret: "whsec_x"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := NewClient(ctx, tt.cfg, logg)
			switch {
			case tt.wantErr != nil:
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
			case tt.fails:
				if err == nil {
					t.Fatalf("expected error")
				}
			default:
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if client.Mode() != ModeTest || client.SigningSecret() != "whsec_x" {
					t.Fatalf("unexpected client %+v", client)
				}
			}
		})
	}
}
