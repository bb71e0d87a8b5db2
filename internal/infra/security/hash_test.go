package security

import (
	"errors"
	"strconv"
	"strings"
	"testing"
)

func newTestHasher(t *testing.T) *Argon2Hasher {
	t.Helper()

	cfg := DefaultArgon2Config()
	cfg.Memory = 8 * 1024
	cfg.Iterations = 1

	hasher, err := NewArgon2Hasher(cfg)
	if err != nil {
		t.Fatalf("NewArgon2Hasher returned error: %v", err)
	}
	return hasher
}

func TestArgon2Hasher_HashAndVerify(t *testing.T) {
	hasher := newTestHasher(t)

	encoded, err := hasher.Hash("Secret123")
	if err != nil {
		t.Fatalf("Hash returned error: %v", err)
	}

	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != argon2Variant || parts[2] != argon2Version {
		t.Fatalf("unexpected hash format: %q", encoded)
	}
	if parts[3] != "m=8192,t=1,p=4" {
		t.Fatalf("hash does not embed configured parameters: %s", parts[3])
	}

	ok, err := hasher.Verify("Secret123", encoded)
	if err != nil || !ok {
		t.Fatalf("expected password to verify, ok=%v err=%v", ok, err)
	}

	ok, err = hasher.Verify("Secret124", encoded)
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if ok {
		t.Fatal("Verify returned true for incorrect password")
	}
}

func TestArgon2Hasher_VerifyUsesEmbeddedParameters(t *testing.T) {
	weak := newTestHasher(t)
	encoded, err := weak.Hash("Secret123")
	if err != nil {
		t.Fatalf("Hash returned error: %v", err)
	}

	strong, err := NewArgon2Hasher(DefaultArgon2Config())
	if err != nil {
		t.Fatalf("NewArgon2Hasher returned error: %v", err)
	}

	ok, err := strong.Verify("Secret123", encoded)
	if err != nil || !ok {
		t.Fatalf("expected hashes made with older parameters to verify, ok=%v err=%v", ok, err)
	}
}

func TestArgon2Hasher_InvalidInputs(t *testing.T) {
	hasher := newTestHasher(t)

	if _, err := hasher.Verify("password", "invalid-format"); !errors.Is(err, errInvalidHashFormat) {
		t.Fatalf("expected errInvalidHashFormat, got %v", err)
	}

	ok, err := hasher.Verify("", "")
	if err != nil || ok {
		t.Fatalf("expected false without error for empty inputs, ok=%v err=%v", ok, err)
	}

	if _, err := NewArgon2Hasher(Argon2Config{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}); !errors.Is(err, errInvalidConfig) {
		t.Fatalf("expected errInvalidConfig, got %v", err)
	}
}

func TestGenerateNumericCode_RangeAndLength(t *testing.T) {
	for i := 0; i < 500; i++ {
		code, err := GenerateNumericCode(6)
		if err != nil {
			t.Fatalf("GenerateNumericCode returned error: %v", err)
		}
		if len(code) != 6 {
			t.Fatalf("expected 6 digits, got %q", code)
		}
		n, err := strconv.Atoi(code)
		if err != nil {
			t.Fatalf("code is not numeric: %q", code)
		}
		if n < 100000 || n > 999999 {
			t.Fatalf("code %d outside [100000, 999999]", n)
		}
	}
}

func TestGenerateNumericCode_RejectsBadLength(t *testing.T) {
	if _, err := GenerateNumericCode(0); err == nil {
		t.Fatal("expected error for zero length")
	}
	if _, err := GenerateNumericCode(19); err == nil {
		t.Fatal("expected error for oversized length")
	}
}

func TestCodesEqual(t *testing.T) {
	if !CodesEqual("123456", "123456") {
		t.Fatal("expected equal codes to match")
	}
	if CodesEqual("123456", "123457") || CodesEqual("123456", "12345") {
		t.Fatal("expected different codes to differ")
	}
}
