package hipaa

import (
	"bytes"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestNewEncryptionService_ValidKey(t *testing.T) {
	svc, err := NewEncryptionService(generateTestKey(t), zerolog.Nop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !svc.IsEnabled() {
		t.Fatal("expected encryption to be enabled with a valid key")
	}
	if svc.Encryptor() == nil {
		t.Fatal("expected non-nil encryptor when enabled")
	}
}

func TestNewEncryptionService_EmptyKey(t *testing.T) {
	var buf bytes.Buffer
	svc, err := NewEncryptionService(nil, zerolog.New(&buf))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if svc.IsEnabled() {
		t.Fatal("expected encryption to be disabled with empty key")
	}
	if svc.Encryptor() != nil {
		t.Fatal("expected nil encryptor when disabled")
	}
	if !strings.Contains(buf.String(), "PHI encryption disabled") {
		t.Errorf("expected a warning to be logged, got %q", buf.String())
	}
}

func TestNewEncryptionService_WrongKeySize(t *testing.T) {
	_, err := NewEncryptionService(make([]byte, 16), zerolog.Nop())
	if err == nil {
		t.Fatal("expected error for 16-byte key")
	}
}

func TestEncryptionService_RoundTrip(t *testing.T) {
	svc, err := NewEncryptionService(generateTestKey(t), zerolog.Nop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ct, err := svc.Encryptor().Encrypt("asthma since childhood")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	pt, err := svc.Encryptor().Decrypt(ct)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if pt != "asthma since childhood" {
		t.Errorf("unexpected plaintext %q", pt)
	}
}
