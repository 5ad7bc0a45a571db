package user

import (
	"testing"
	"time"

	"github.com/Strob0t/eventcast/internal/domain/marking"
)

func TestPrincipal_Validate(t *testing.T) {
	exp := time.Now().Add(time.Hour)
	tests := []struct {
		name    string
		p       Principal
		wantErr string
	}{
		{name: "valid", p: Principal{ID: "u1", ExpiresAt: exp}},
		{name: "missing id", p: Principal{ExpiresAt: exp}, wantErr: "id is required"},
		{name: "missing expiry", p: Principal{ID: "u1"}, wantErr: "expires_at is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.p.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error %q, got nil", tt.wantErr)
			}
			if got := err.Error(); got != tt.wantErr {
				t.Fatalf("error = %q, want %q", got, tt.wantErr)
			}
		})
	}
}

func TestPrincipal_Expired(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	p := &Principal{ID: "u1", ExpiresAt: now}

	if p.Expired(now.Add(-time.Second)) {
		t.Error("principal should be valid before expiry")
	}
	if !p.Expired(now) {
		t.Error("principal should be expired at expiry instant")
	}
}

func TestCredential_Principal(t *testing.T) {
	c := &Credential{UserID: "u1", Name: "Ana", AllowedMarkings: []marking.Marking{"A", "B"}}
	p := c.Principal()
	if p.ID != "u1" || p.Name != "Ana" {
		t.Fatalf("unexpected principal: %+v", p)
	}
	m := p.Markings()
	if !m.Contains("A") || !m.Contains("B") || m.Len() != 2 {
		t.Fatalf("unexpected markings: %v", m.Slice())
	}
}
