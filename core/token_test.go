package core

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

func newTestCodec(t *testing.T) *TokenCodec {
	t.Helper()
	codec, err := NewTokenCodec(24 * time.Hour)
	if err != nil {
		t.Fatalf("NewTokenCodec error: %v", err)
	}
	return codec
}

func TestTokenRoundTrip(t *testing.T) {
	codec := newTestCodec(t)
	now := time.Now().Truncate(time.Second)
	p := Principal{Username: "alice", Role: RoleStudent}

	token, err := codec.Issue(p, now)
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}

	claims, err := codec.Verify(token, now)
	if err != nil {
		t.Fatalf("Verify error: %v", err)
	}
	if claims.Subject != "alice" {
		t.Errorf("subject = %q, want alice", claims.Subject)
	}
	if claims.Role != "student" {
		t.Errorf("role = %q, want student", claims.Role)
	}
	if !claims.IssuedAt.Time.Equal(now) {
		t.Errorf("issuedAt = %v, want %v", claims.IssuedAt.Time, now)
	}
	if !claims.ExpiresAt.Time.Equal(now.Add(24 * time.Hour)) {
		t.Errorf("expiresAt = %v, want %v", claims.ExpiresAt.Time, now.Add(24*time.Hour))
	}
}

func TestTokenWireFormat(t *testing.T) {
	codec := newTestCodec(t)
	now := time.Now().Truncate(time.Second)
	token, err := codec.Issue(Principal{Username: "alice", Role: RoleTeacher}, now)
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}

	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		t.Fatalf("token has %d segments, want 3", len(parts))
	}

	headerJSON, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		t.Fatalf("header is not base64url: %v", err)
	}
	var header map[string]string
	if err := json.Unmarshal(headerJSON, &header); err != nil {
		t.Fatalf("header is not json: %v", err)
	}
	if header["alg"] != "HS256" {
		t.Errorf("alg = %q, want HS256", header["alg"])
	}

	payloadJSON, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		t.Fatalf("payload is not base64url: %v", err)
	}
	var payload map[string]any
	if err := json.Unmarshal(payloadJSON, &payload); err != nil {
		t.Fatalf("payload is not json: %v", err)
	}
	if payload["sub"] != "alice" || payload["role"] != "teacher" {
		t.Errorf("payload = %v, want sub=alice role=teacher", payload)
	}
	if _, ok := payload["iat"]; !ok {
		t.Error("payload missing iat")
	}
	if _, ok := payload["exp"]; !ok {
		t.Error("payload missing exp")
	}
}

func TestTokenExpiryBoundary(t *testing.T) {
	codec := newTestCodec(t)
	issued := time.Now().Truncate(time.Second)
	expiry := issued.Add(24 * time.Hour)

	token, err := codec.Issue(Principal{Username: "alice", Role: RoleStudent}, issued)
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}

	if _, err := codec.Verify(token, expiry.Add(-time.Second)); err != nil {
		t.Errorf("Verify just before expiry: %v, want nil", err)
	}
	if _, err := codec.Verify(token, expiry); !errors.Is(err, ErrTokenExpired) {
		t.Errorf("Verify at expiry: %v, want ErrTokenExpired", err)
	}
	if _, err := codec.Verify(token, expiry.Add(time.Hour)); !errors.Is(err, ErrTokenExpired) {
		t.Errorf("Verify after expiry: %v, want ErrTokenExpired", err)
	}
}

func TestTokenTampering(t *testing.T) {
	codec := newTestCodec(t)
	now := time.Now().Truncate(time.Second)
	token, err := codec.Issue(Principal{Username: "alice", Role: RoleStudent}, now)
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}
	parts := strings.Split(token, ".")

	// Rewrite the payload claiming a different role, keeping the original signature.
	payloadJSON, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	forged := strings.Replace(string(payloadJSON), "student", "admin", 1)
	forgedToken := parts[0] + "." + base64.RawURLEncoding.EncodeToString([]byte(forged)) + "." + parts[2]
	if _, err := codec.Verify(forgedToken, now); !errors.Is(err, ErrTokenSignature) {
		t.Errorf("forged payload: %v, want ErrTokenSignature", err)
	}

	// Truncated signature.
	cut := parts[0] + "." + parts[1] + "." + parts[2][:len(parts[2])-2]
	if _, err := codec.Verify(cut, now); !errors.Is(err, ErrTokenSignature) && !errors.Is(err, ErrTokenMalformed) {
		t.Errorf("truncated signature: %v, want signature or malformed error", err)
	}

	// Token signed with a different process key.
	otherCodec := newTestCodec(t)
	foreign, err := otherCodec.Issue(Principal{Username: "alice", Role: RoleStudent}, now)
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}
	if _, err := codec.Verify(foreign, now); !errors.Is(err, ErrTokenSignature) {
		t.Errorf("foreign key: %v, want ErrTokenSignature", err)
	}
}

func TestTokenMalformed(t *testing.T) {
	codec := newTestCodec(t)
	now := time.Now()
	for _, token := range []string{"", "garbage", "a.b", "a.b.c", "only.two"} {
		if _, err := codec.Verify(token, now); !errors.Is(err, ErrTokenMalformed) {
			t.Errorf("Verify(%q) = %v, want ErrTokenMalformed", token, err)
		}
	}
}

func TestConcurrentIssueDistinctTokens(t *testing.T) {
	codec := newTestCodec(t)
	now := time.Now().Truncate(time.Second)
	principals := []Principal{
		{Username: "alice", Role: RoleStudent},
		{Username: "bob", Role: RoleStudent},
		{Username: "carol", Role: RoleTeacher},
		{Username: "dave", Role: RoleAdmin},
	}

	var wg sync.WaitGroup
	tokens := make([]string, len(principals))
	for i, p := range principals {
		wg.Add(1)
		go func(i int, p Principal) {
			defer wg.Done()
			token, err := codec.Issue(p, now)
			if err != nil {
				t.Errorf("Issue(%s) error: %v", p.Username, err)
				return
			}
			tokens[i] = token
		}(i, p)
	}
	wg.Wait()

	seen := make(map[string]string, len(tokens))
	for i, token := range tokens {
		if prev, dup := seen[token]; dup {
			t.Errorf("principals %s and %s produced the same token", prev, principals[i].Username)
		}
		seen[token] = principals[i].Username
		claims, err := codec.Verify(token, now)
		if err != nil {
			t.Errorf("Verify(%s) error: %v", principals[i].Username, err)
			continue
		}
		if claims.Subject != principals[i].Username {
			t.Errorf("subject = %q, want %q", claims.Subject, principals[i].Username)
		}
	}
}
