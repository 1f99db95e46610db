package cryptoutil

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"io"
	"testing"
)

func TestParseKeyBase64(t *testing.T) {
	key := make([]byte, 32)
	encoded := base64.StdEncoding.EncodeToString(key)
	parsed, err := ParseKey(encoded)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(parsed) != 32 {
		t.Fatalf("unexpected key length: %d", len(parsed))
	}
}

func TestGenerateKey(t *testing.T) {
	a, err := GenerateKey()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, _ := GenerateKey()
	if a == b {
		t.Fatal("expected distinct keys")
	}
	if _, err := ParseKey(a); err != nil {
		t.Fatalf("generated key does not parse: %v", err)
	}
}

func TestParseKeyHexAndLength(t *testing.T) {
	if _, err := ParseKey("hex:" + hex.EncodeToString(make([]byte, 32))); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := ParseKey("hex:" + hex.EncodeToString(make([]byte, 16))); err == nil {
		t.Fatal("expected error for short key")
	}
	if _, err := ParseKey(""); err == nil {
		t.Fatal("expected error for empty key")
	}
}

func TestConfigRoundTrip(t *testing.T) {
	key := bytes.Repeat([]byte{7}, 32)
	plain := []byte("windows:\n  - id: night\n")
	sealed, err := SealConfig(plain, key, "yaml")
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if string(sealed[:4]) != "TZW1" {
		t.Fatalf("unexpected header: %q", sealed[:4])
	}
	opened, format, err := OpenConfig(sealed, key)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if !bytes.Equal(opened, plain) || format != "yaml" {
		t.Fatalf("unexpected result: %q %q", opened, format)
	}
	if _, _, err := OpenConfig(sealed, bytes.Repeat([]byte{8}, 32)); err == nil {
		t.Fatal("expected error with wrong key")
	}
}

func TestConfigFormatIsAuthenticated(t *testing.T) {
	key := bytes.Repeat([]byte{7}, 32)
	sealed, err := SealConfig([]byte(`{"windows":[]}`), key, "json")
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	// Swap "json" for "yaml" in the header; the tag must no longer verify.
	copy(sealed[7:11], "yaml")
	if _, _, err := OpenConfig(sealed, key); err == nil {
		t.Fatal("expected tampered format to be rejected")
	}
	if _, err := SealConfig(nil, key, ""); err == nil {
		t.Fatal("expected error for empty format")
	}
}

func TestStreamBoundToObjectName(t *testing.T) {
	key := bytes.Repeat([]byte{1}, 32)
	name := "tzw/snapshots/20240101T000000Z.json.enc"
	buf := &bytes.Buffer{}
	w, err := EncryptWriter(buf, key, name)
	if err != nil {
		t.Fatalf("encrypt writer: %v", err)
	}
	if _, err := w.Write([]byte(`{"state":"on"}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	sealed := bytes.Clone(buf.Bytes())

	r, err := DecryptReader(bytes.NewReader(sealed), key, name)
	if err != nil {
		t.Fatalf("decrypt reader: %v", err)
	}
	out, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(out) != `{"state":"on"}` {
		t.Fatalf("unexpected payload: %s", out)
	}

	r, err = DecryptReader(bytes.NewReader(sealed), key, "tzw/snapshots/other.json.enc")
	if err == nil {
		_, err = io.ReadAll(r)
	}
	if err == nil {
		t.Fatal("expected decryption under another object name to fail")
	}
}

func TestObjectKeyDistinct(t *testing.T) {
	master := bytes.Repeat([]byte{3}, 32)
	a, err := ObjectKey(master, "a")
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	b, _ := ObjectKey(master, "b")
	if bytes.Equal(a, b) || bytes.Equal(a, master) {
		t.Fatal("expected distinct derived keys")
	}
	if _, err := ObjectKey(master[:16], "a"); err == nil {
		t.Fatal("expected error for short master key")
	}
}
