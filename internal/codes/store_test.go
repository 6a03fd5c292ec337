package codes

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestIssueAndValidate(t *testing.T) {
	_, rdb := newTestRedis(t)
	store := NewStore(rdb, "test", 24*time.Hour)
	ctx := context.Background()

	id, record, err := store.Issue(ctx, "a@b.com", "email", 6)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if id != 1 {
		t.Fatalf("expected first id 1, got %d", id)
	}
	if len(record.Code()) != 6 {
		t.Fatalf("expected 6-digit code, got %q", record.Code())
	}

	matched, err := store.Validate(ctx, "a@b.com", "email", record.Code(), 5*time.Minute)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if !matched.Used() {
		t.Fatal("validated record should be marked used")
	}

	stored, err := store.GetRecord(ctx, id)
	if err != nil {
		t.Fatalf("GetRecord failed: %v", err)
	}
	if !stored.Used() {
		t.Fatal("stored record should be marked used after validation")
	}
}

func TestValidateReplayRejected(t *testing.T) {
	_, rdb := newTestRedis(t)
	store := NewStore(rdb, "test", 24*time.Hour)
	ctx := context.Background()

	_, record, err := store.Issue(ctx, "a@b.com", "email", 6)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	if _, err := store.Validate(ctx, "a@b.com", "email", record.Code(), 5*time.Minute); err != nil {
		t.Fatalf("first Validate failed: %v", err)
	}

	_, err = store.Validate(ctx, "a@b.com", "email", record.Code(), 5*time.Minute)
	if !errors.Is(err, ErrCodeNotFound) {
		t.Fatalf("replay should fail with ErrCodeNotFound, got %v", err)
	}
}

func TestValidateMismatch(t *testing.T) {
	_, rdb := newTestRedis(t)
	store := NewStore(rdb, "test", 24*time.Hour)
	ctx := context.Background()

	id, record, err := store.Issue(ctx, "a@b.com", "email", 6)
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}

	wrong := "000000"
	if wrong == record.Code() {
		wrong = "000001"
	}

	_, err = store.Validate(ctx, "a@b.com", "email", wrong, 5*time.Minute)
	if !errors.Is(err, ErrCodeMismatch) {
		t.Fatalf("expected ErrCodeMismatch, got %v", err)
	}

	// A mismatch leaves the record unused so the right code still works.
	stored, err := store.GetRecord(ctx, id)
	if err != nil {
		t.Fatalf("GetRecord failed: %v", err)
	}
	if stored.Used() {
		t.Fatal("mismatch must not consume the record")
	}
	if _, err := store.Validate(ctx, "a@b.com", "email", record.Code(), 5*time.Minute); err != nil {
		t.Fatalf("correct code after mismatch should validate: %v", err)
	}
}

func TestValidateMissing(t *testing.T) {
	_, rdb := newTestRedis(t)
	store := NewStore(rdb, "test", 24*time.Hour)

	_, err := store.Validate(context.Background(), "nobody@b.com", "email", "123456", 5*time.Minute)
	if !errors.Is(err, ErrCodeNotFound) {
		t.Fatalf("expected ErrCodeNotFound, got %v", err)
	}
}

func TestValidateExpired(t *testing.T) {
	_, rdb := newTestRedis(t)
	store := NewStore(rdb, "test", 24*time.Hour)
	ctx := context.Background()

	// Write a record whose creation time is past the validity window.
	stale := &Record{
		target:    "a@b.com",
		channel:   "email",
		code:      "123456",
		createdAt: time.Now().Add(-5*time.Minute - time.Second),
	}
	blob, err := encodeCodeRecord(stale)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	if err := rdb.Set(ctx, store.recordKey("1"), blob, 0).Err(); err != nil {
		t.Fatalf("seed record failed: %v", err)
	}
	if err := rdb.Set(ctx, store.activeKey("a@b.com", "email"), "1", 0).Err(); err != nil {
		t.Fatalf("seed pointer failed: %v", err)
	}

	_, err = store.Validate(ctx, "a@b.com", "email", "123456", 5*time.Minute)
	if !errors.Is(err, ErrCodeExpired) {
		t.Fatalf("expected ErrCodeExpired, got %v", err)
	}

	// Expiry does not consume the record; a later issue supersedes it.
	stored, err := store.GetRecord(ctx, 1)
	if err != nil {
		t.Fatalf("GetRecord failed: %v", err)
	}
	if stored.Used() {
		t.Fatal("expired record must stay unused")
	}
}

func TestIssueSupersedesActiveCode(t *testing.T) {
	_, rdb := newTestRedis(t)
	store := NewStore(rdb, "test", 24*time.Hour)
	ctx := context.Background()

	firstID, firstRecord, err := store.Issue(ctx, "a@b.com", "email", 6)
	if err != nil {
		t.Fatalf("first Issue failed: %v", err)
	}
	secondID, secondRecord, err := store.Issue(ctx, "a@b.com", "email", 6)
	if err != nil {
		t.Fatalf("second Issue failed: %v", err)
	}
	if secondID == firstID {
		t.Fatal("issues must get distinct ids")
	}

	// Invariant: at most one unused record per (target, channel).
	superseded, err := store.GetRecord(ctx, firstID)
	if err != nil {
		t.Fatalf("GetRecord failed: %v", err)
	}
	if !superseded.Used() {
		t.Fatal("superseded record must be marked used")
	}

	// Only the newest code validates.
	if _, err := store.Validate(ctx, "a@b.com", "email", firstRecord.Code(), 5*time.Minute); err == nil &&
		firstRecord.Code() != secondRecord.Code() {
		t.Fatal("superseded code must not validate")
	}
	if _, err := store.Validate(ctx, "a@b.com", "email", secondRecord.Code(), 5*time.Minute); err != nil {
		t.Fatalf("newest code should validate: %v", err)
	}
}

func TestIssueIsolatesChannelsAndTargets(t *testing.T) {
	_, rdb := newTestRedis(t)
	store := NewStore(rdb, "test", 24*time.Hour)
	ctx := context.Background()

	_, emailRecord, err := store.Issue(ctx, "a@b.com", "email", 6)
	if err != nil {
		t.Fatalf("email Issue failed: %v", err)
	}
	_, phoneRecord, err := store.Issue(ctx, "+15550100", "phone", 6)
	if err != nil {
		t.Fatalf("phone Issue failed: %v", err)
	}

	if _, err := store.Validate(ctx, "a@b.com", "email", emailRecord.Code(), 5*time.Minute); err != nil {
		t.Fatalf("email code should validate: %v", err)
	}
	if _, err := store.Validate(ctx, "+15550100", "phone", phoneRecord.Code(), 5*time.Minute); err != nil {
		t.Fatalf("phone code should validate: %v", err)
	}
}

func TestCodeRecordCodecRoundTrip(t *testing.T) {
	original := &Record{
		target:    "someone@example.com",
		channel:   "email",
		code:      "042137",
		createdAt: time.UnixMilli(time.Now().UnixMilli()),
		used:      true,
	}

	blob, err := encodeCodeRecord(original)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	decoded, err := decodeCodeRecord(blob)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if decoded.target != original.target ||
		decoded.channel != original.channel ||
		decoded.code != original.code ||
		!decoded.createdAt.Equal(original.createdAt) ||
		decoded.used != original.used {
		t.Fatalf("round trip mismatch: %+v != %+v", decoded, original)
	}

	// The used flag must sit at offset 1 for the supersession script.
	if blob[1] != 1 {
		t.Fatalf("used flag not at offset 1: % x", blob[:3])
	}
}

func TestNewOTP(t *testing.T) {
	code, err := NewOTP(6)
	if err != nil {
		t.Fatalf("NewOTP failed: %v", err)
	}
	if len(code) != 6 {
		t.Fatalf("expected 6 digits, got %q", code)
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			t.Fatalf("non-digit in code %q", code)
		}
	}

	if _, err := NewOTP(3); err == nil {
		t.Fatal("expected error for too few digits")
	}
}

func TestStoreUnavailable(t *testing.T) {
	mr, rdb := newTestRedis(t)
	store := NewStore(rdb, "test", 24*time.Hour)
	mr.Close()

	if _, _, err := store.Issue(context.Background(), "a@b.com", "email", 6); !errors.Is(err, ErrCodeRedisUnavailable) {
		t.Fatalf("expected ErrCodeRedisUnavailable, got %v", err)
	}
	if _, err := store.Validate(context.Background(), "a@b.com", "email", "123456", 5*time.Minute); !errors.Is(err, ErrCodeRedisUnavailable) {
		t.Fatalf("expected ErrCodeRedisUnavailable, got %v", err)
	}
}
