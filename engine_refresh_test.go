package otpAuth

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRefreshRotation(t *testing.T) {
	_, rdb := newTestRedis(t)
	sender := &captureSender{}
	engine := newTestEngine(t, rdb, testConfig(), sender)
	ctx := context.Background()

	first := login(t, engine, sender, "a@b.com", ChannelEmail, "phone-1")

	second, err := engine.Refresh(ctx, first.RefreshToken, "phone-1")
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if second.RefreshToken == first.RefreshToken {
		t.Fatal("rotation must mint a fresh refresh token")
	}
	if second.DeviceID != "phone-1" {
		t.Fatalf("rotation must keep the device id, got %q", second.DeviceID)
	}

	// The new pair works; the old access token is dead.
	if _, err := engine.VerifyAccess(ctx, second.AccessToken); err != nil {
		t.Fatalf("rotated access token should verify: %v", err)
	}
	if _, err := engine.VerifyAccess(ctx, first.AccessToken); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("pre-rotation access token should be revoked, got %v", err)
	}
}

func TestRefreshReuseRevokesEverySession(t *testing.T) {
	_, rdb := newTestRedis(t)
	sender := &captureSender{}
	engine := newTestEngine(t, rdb, testConfig(), sender)
	ctx := context.Background()

	phone := login(t, engine, sender, "a@b.com", ChannelEmail, "phone-1")
	laptop := login(t, engine, sender, "a@b.com", ChannelEmail, "laptop-2")

	rotated, err := engine.Refresh(ctx, phone.RefreshToken, "phone-1")
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	// Replaying the consumed token is treated as theft.
	if _, err := engine.Refresh(ctx, phone.RefreshToken, "phone-1"); !errors.Is(err, ErrRefreshReuse) {
		t.Fatalf("replay should report ErrRefreshReuse, got %v", err)
	}

	// Every session of the user dies, including the pair minted from the
	// legitimate rotation and the unrelated laptop session.
	if _, err := engine.VerifyAccess(ctx, rotated.AccessToken); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("rotated session should be revoked, got %v", err)
	}
	if _, err := engine.VerifyAccess(ctx, laptop.AccessToken); !errors.Is(err, ErrTokenRevoked) {
		t.Fatalf("laptop session should be revoked, got %v", err)
	}
	if _, err := engine.Refresh(ctx, rotated.RefreshToken, "phone-1"); !errors.Is(err, ErrRefreshReuse) {
		t.Fatalf("revoked refresh token should be unusable, got %v", err)
	}
}

func TestRefreshRequiresMatchingDevice(t *testing.T) {
	_, rdb := newTestRedis(t)
	sender := &captureSender{}
	engine := newTestEngine(t, rdb, testConfig(), sender)
	ctx := context.Background()

	pair := login(t, engine, sender, "a@b.com", ChannelEmail, "phone-1")

	if _, err := engine.Refresh(ctx, pair.RefreshToken, "laptop-2"); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("wrong device must not refresh, got %v", err)
	}
	if _, err := engine.Refresh(ctx, pair.RefreshToken, ""); !errors.Is(err, ErrInvalidDevice) {
		t.Fatalf("missing device id must be rejected, got %v", err)
	}

	// The mismatch must not consume the token.
	if _, err := engine.Refresh(ctx, pair.RefreshToken, "phone-1"); err != nil {
		t.Fatalf("legitimate refresh after mismatch should work: %v", err)
	}
}

func TestRevokeAllReachesSessionsPastAccessExpiry(t *testing.T) {
	mr, rdb := newTestRedis(t)
	sender := &captureSender{}
	cfg := testConfig()
	cfg.JWT.AccessTTL = 50 * time.Millisecond
	engine := newTestEngine(t, rdb, cfg, sender)
	ctx := context.Background()

	pair := login(t, engine, sender, "a@b.com", ChannelEmail, "phone-1")

	// The access record ages out of the store while the refresh record
	// stays live; viewing the device list must not orphan the session.
	mr.FastForward(100 * time.Millisecond)

	devices, err := engine.ListDevices(ctx, 42)
	if err != nil {
		t.Fatalf("ListDevices failed: %v", err)
	}
	if len(devices) != 1 {
		t.Fatalf("between-refreshes session must stay listed, got %d", len(devices))
	}

	revoked, err := engine.LogoutAll(ctx, 42)
	if err != nil {
		t.Fatalf("LogoutAll failed: %v", err)
	}
	if revoked != 1 {
		t.Fatalf("expected 1 revoked session, got %d", revoked)
	}

	if _, err := engine.Refresh(ctx, pair.RefreshToken, "phone-1"); !errors.Is(err, ErrRefreshReuse) {
		t.Fatalf("refresh token must not survive full revocation, got %v", err)
	}
}

func TestRefreshRejectsAccessToken(t *testing.T) {
	_, rdb := newTestRedis(t)
	sender := &captureSender{}
	engine := newTestEngine(t, rdb, testConfig(), sender)
	ctx := context.Background()

	pair := login(t, engine, sender, "a@b.com", ChannelEmail, "phone-1")

	if _, err := engine.Refresh(ctx, pair.AccessToken, "phone-1"); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("access token must not refresh, got %v", err)
	}
}

func TestRefreshRejectsGarbage(t *testing.T) {
	_, rdb := newTestRedis(t)
	sender := &captureSender{}
	engine := newTestEngine(t, rdb, testConfig(), sender)

	if _, err := engine.Refresh(context.Background(), "not-a-token", "phone-1"); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
}

func TestVerifyAccessExpiry(t *testing.T) {
	_, rdb := newTestRedis(t)
	sender := &captureSender{}
	cfg := testConfig()
	// Generous enough that exp lands ahead of now even after the jwt
	// library truncates timestamps to whole seconds.
	cfg.JWT.AccessTTL = 1200 * time.Millisecond
	engine := newTestEngine(t, rdb, cfg, sender)
	ctx := context.Background()

	pair := login(t, engine, sender, "a@b.com", ChannelEmail, "phone-1")

	if _, err := engine.VerifyAccess(ctx, pair.AccessToken); err != nil {
		t.Fatalf("fresh access token should verify: %v", err)
	}

	time.Sleep(1300 * time.Millisecond)

	if _, err := engine.VerifyAccess(ctx, pair.AccessToken); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}
