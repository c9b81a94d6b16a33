package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/dmitrijs2005/blobkeeper/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

func TestGenerateAndParse_Success(t *testing.T) {
	t.Parallel()

	secret := []byte("super-secret")
	userID := "user-123"

	tok, err := GenerateToken(userID, secret, time.Now())
	if err != nil {
		t.Fatalf("GenerateToken error: %v", err)
	}

	gotUserID, err := GetUserIDFromToken(tok, secret)
	if err != nil {
		t.Fatalf("GetUserIDFromToken error: %v", err)
	}
	if gotUserID != userID {
		t.Fatalf("userID mismatch: got %q want %q", gotUserID, userID)
	}
}

func TestGenerateToken_Unique(t *testing.T) {
	t.Parallel()

	now := time.Now()
	a, err := GenerateToken("u", []byte("k"), now)
	if err != nil {
		t.Fatal(err)
	}
	b, err := GenerateToken("u", []byte("k"), now)
	if err != nil {
		t.Fatal(err)
	}
	if a == b {
		t.Fatal("tokens minted at the same instant must differ")
	}
}

func TestGetUserIDFromToken_WrongSecret(t *testing.T) {
	t.Parallel()

	tok, err := GenerateToken("u2", []byte("right-secret"), time.Now())
	if err != nil {
		t.Fatalf("GenerateToken error: %v", err)
	}

	_, err = GetUserIDFromToken(tok, []byte("wrong-secret"))
	if err == nil {
		t.Fatalf("expected error for invalid signature, got nil")
	}
}

func TestGetUserIDFromToken_MalformedString(t *testing.T) {
	t.Parallel()

	_, err := GetUserIDFromToken("not.a.jwt", []byte("k"))
	if err == nil {
		t.Fatalf("expected error for malformed token, got nil")
	}
}

func TestGetUserIDFromToken_NoSubject(t *testing.T) {
	t.Parallel()

	secret := []byte("k")
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{ID: "x"}).SignedString(secret)
	if err != nil {
		t.Fatal(err)
	}

	_, err = GetUserIDFromToken(tok, secret)
	if !errors.Is(err, common.ErrInvalidToken) {
		t.Fatalf("want ErrInvalidToken, got %v", err)
	}
}

func TestGetUserIDFromToken_RejectsOtherAlgorithms(t *testing.T) {
	t.Parallel()

	secret := []byte("k")
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.RegisteredClaims{Subject: "u"}).SignedString(secret)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := GetUserIDFromToken(tok, secret); err == nil {
		t.Fatal("HS512 token must be rejected")
	}
}

func TestFingerprint(t *testing.T) {
	t.Parallel()

	a, err := Fingerprint("token", []byte("secret"))
	if err != nil {
		t.Fatal(err)
	}
	if len(a) != 64 {
		t.Fatalf("want 64 hex chars, got %d", len(a))
	}

	b, _ := Fingerprint("token", []byte("secret"))
	if a != b {
		t.Fatal("fingerprint must be deterministic")
	}

	c, _ := Fingerprint("token", []byte("other"))
	if a == c {
		t.Fatal("fingerprint must depend on the key")
	}

	long := make([]byte, 100)
	if _, err := Fingerprint("token", long); err != nil {
		t.Fatalf("long keys must be accepted: %v", err)
	}
}
