package jwt

import (
	"errors"
	"strings"
	"testing"
	"time"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func newTestManager(t *testing.T) *Manager {
	t.Helper()

	m, err := NewManager(Config{
		Secret: testSecret,
		Issuer: "otpauth-test",
	})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}
	return m
}

func TestNewManagerRejectsShortSecret(t *testing.T) {
	if _, err := NewManager(Config{Secret: []byte("short")}); err == nil {
		t.Fatal("expected error for short secret")
	}
}

func TestSignParseRoundTrip(t *testing.T) {
	m := newTestManager(t)

	token, err := m.Sign(9, 42, "phone-1", TypeAccess, time.Now().Add(15*time.Minute))
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}

	claims, err := m.Parse(token, TypeAccess)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if claims.ID != 9 || claims.UserID != 42 || claims.DeviceID != "phone-1" || claims.Type != TypeAccess {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestParseRejectsWrongType(t *testing.T) {
	m := newTestManager(t)

	token, err := m.Sign(9, 42, "phone-1", TypeRefresh, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}

	if _, err := m.Parse(token, TypeAccess); !errors.Is(err, ErrTokenType) {
		t.Fatalf("refresh token must not verify as access, got %v", err)
	}
}

func TestParseRejectsExpired(t *testing.T) {
	m := newTestManager(t)

	token, err := m.Sign(9, 42, "phone-1", TypeAccess, time.Now().Add(-time.Minute))
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}

	if _, err := m.Parse(token, TypeAccess); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestParseRejectsTampering(t *testing.T) {
	m := newTestManager(t)

	token, err := m.Sign(9, 42, "phone-1", TypeAccess, time.Now().Add(15*time.Minute))
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}

	parts := strings.Split(token, ".")
	tampered := parts[0] + "." + parts[1] + "." + strings.Repeat("A", len(parts[2]))
	if _, err := m.Parse(tampered, TypeAccess); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}

	if _, err := m.Parse("not-a-token", TypeAccess); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid for garbage input, got %v", err)
	}
}

func TestParseRejectsForeignSecret(t *testing.T) {
	m := newTestManager(t)

	foreign, err := NewManager(Config{Secret: []byte("ffffffffffffffffffffffffffffffff")})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	token, err := foreign.Sign(9, 42, "phone-1", TypeAccess, time.Now().Add(15*time.Minute))
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}

	if _, err := m.Parse(token, TypeAccess); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("foreign signature must not verify, got %v", err)
	}
}

func TestParseRejectsWrongIssuer(t *testing.T) {
	m := newTestManager(t)

	other, err := NewManager(Config{Secret: testSecret, Issuer: "someone-else"})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	token, err := other.Sign(9, 42, "phone-1", TypeAccess, time.Now().Add(15*time.Minute))
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}

	if _, err := m.Parse(token, TypeAccess); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("wrong issuer must not verify, got %v", err)
	}
}

func TestLeewayAcceptsRecentExpiry(t *testing.T) {
	m, err := NewManager(Config{Secret: testSecret, Leeway: time.Minute})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	token, err := m.Sign(9, 42, "", TypeAccess, time.Now().Add(-10*time.Second))
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}

	if _, err := m.Parse(token, TypeAccess); err != nil {
		t.Fatalf("expiry within leeway should verify: %v", err)
	}
}
