package security

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/goliatone/go-bulkedit/core"
)

const legacyFixtureBlob = "AAECAwQFBgcICQoLDA0ODw==:7QJTpHpKT9a9fj+qA7yqubZL5bybqiwKXUq/VOOJk08="

func TestCredentialCodec_RoundTrip(t *testing.T) {
	codec := NewCredentialCodec(KeyRing{1: "secret-one", 3: "secret-three"})
	for _, version := range []int{1, 3} {
		blob, err := codec.Encrypt("shpat_abc123", version)
		if err != nil {
			t.Fatalf("encrypt v%d: %v", version, err)
		}
		if strings.Contains(blob, "shpat_abc123") {
			t.Fatalf("expected ciphertext to hide plaintext")
		}
		plain, gotVersion, err := codec.Decrypt(blob)
		if err != nil {
			t.Fatalf("decrypt v%d: %v", version, err)
		}
		if plain != "shpat_abc123" || gotVersion != version {
			t.Fatalf("expected (shpat_abc123, %d), got (%q, %d)", version, plain, gotVersion)
		}
	}
}

func TestCredentialCodec_FreshIVPerCall(t *testing.T) {
	codec := NewCredentialCodec(KeyRing{1: "secret-one"})
	first, _ := codec.Encrypt("token", 1)
	second, _ := codec.Encrypt("token", 1)
	if first == second {
		t.Fatalf("expected distinct blobs for repeated encryption")
	}
	if !strings.HasPrefix(first, "1|") {
		t.Fatalf("expected version prefix, got %q", first)
	}
}

func TestCredentialCodec_LegacyBlobDecodesAsVersionOne(t *testing.T) {
	codec := NewCredentialCodec(KeyRing{1: "legacy-secret"})
	plain, version, err := codec.Decrypt(legacyFixtureBlob)
	if err != nil {
		t.Fatalf("decrypt legacy: %v", err)
	}
	if plain != "shpat_legacy_token" || version != 1 {
		t.Fatalf("unexpected legacy decode (%q, %d)", plain, version)
	}
	explicit, version, err := codec.Decrypt("1|" + legacyFixtureBlob)
	if err != nil {
		t.Fatalf("decrypt explicit: %v", err)
	}
	if explicit != plain || version != 1 {
		t.Fatalf("expected explicit v1 blob to match legacy decode")
	}
}

func TestCredentialCodec_UnreadableVersionFallsBackToLegacyKey(t *testing.T) {
	codec := NewCredentialCodec(KeyRing{1: "legacy-secret"})
	plain, version, err := codec.Decrypt("abc|" + legacyFixtureBlob)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if plain != "shpat_legacy_token" || version != 1 {
		t.Fatalf("unexpected decode (%q, %d)", plain, version)
	}
}

func TestCredentialCodec_MissingKey(t *testing.T) {
	writer := NewCredentialCodec(KeyRing{2: "secret-two"})
	blob, err := writer.Encrypt("token", 2)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	reader := NewCredentialCodec(KeyRing{1: "secret-one"})
	_, _, err = reader.Decrypt(blob)
	if !core.IsMissingKey(err) {
		t.Fatalf("expected missing key error, got %v", err)
	}
	if _, err := reader.Encrypt("token", 4); !core.IsMissingKey(err) {
		t.Fatalf("expected missing key on encrypt, got %v", err)
	}
}

func TestCredentialCodec_WrongKeyFailsPadding(t *testing.T) {
	codec := NewCredentialCodec(KeyRing{1: "not-the-legacy-secret"})
	if _, _, err := codec.Decrypt(legacyFixtureBlob); err == nil {
		t.Fatalf("expected decrypt with the wrong key to fail")
	}
}

func TestCredentialCodec_RejectsMalformedBlobs(t *testing.T) {
	codec := NewCredentialCodec(KeyRing{1: "secret-one"})
	for _, blob := range []string{"", "1|", "1|onlyone", "1|!!!:!!!", "1|AAECAwQFBgcICQoLDA0ODw==:AAEC"} {
		if _, _, err := codec.Decrypt(blob); err == nil {
			t.Fatalf("expected error for %q", blob)
		}
	}
	if _, err := codec.Encrypt("", 1); err == nil {
		t.Fatalf("expected empty plaintext to be rejected")
	}
	if _, err := codec.Encrypt("token", 0); err == nil {
		t.Fatalf("expected non-positive version to be rejected")
	}
}

func TestCredentialCodec_Rotate(t *testing.T) {
	codec := NewCredentialCodec(KeyRing{1: "legacy-secret", 2: "secret-two"})
	rotated, err := codec.Rotate(legacyFixtureBlob, 2)
	if err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if !strings.HasPrefix(rotated, "2|") {
		t.Fatalf("expected v2 blob, got %q", rotated)
	}
	plain, version, err := codec.Decrypt(rotated)
	if err != nil {
		t.Fatalf("decrypt rotated: %v", err)
	}
	if plain != "shpat_legacy_token" || version != 2 {
		t.Fatalf("unexpected rotated decode (%q, %d)", plain, version)
	}
	if _, err := codec.Rotate(legacyFixtureBlob, 7); !core.IsMissingKey(err) {
		t.Fatalf("expected missing key for unknown target version, got %v", err)
	}
}

func TestCredentialCodec_RotationWindow(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	codec := NewCredentialCodec(KeyRing{1: "secret-one", 2: "secret-two"},
		WithClock(func() time.Time { return now }),
		WithRotationWindow(2, KeyRotationWindow{NotBefore: now.Add(time.Hour)}),
	)
	if _, err := codec.Encrypt("token", 2); err == nil {
		t.Fatalf("expected version 2 to be rejected before its window opens")
	}
	if _, err := codec.Encrypt("token", 1); err != nil {
		t.Fatalf("expected version 1 to remain usable: %v", err)
	}
}

func TestCredentialCodec_DeterministicWithFixedRandom(t *testing.T) {
	iv := bytes.Repeat([]byte{0}, 16)
	codec := NewCredentialCodec(KeyRing{1: "secret-one"}, WithRandom(bytes.NewReader(append(iv, iv...))))
	first, err := codec.Encrypt("token", 1)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	second, err := codec.Encrypt("token", 1)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if first != second {
		t.Fatalf("expected identical blobs for identical iv")
	}
	if version, err := BlobVersion(first); err != nil || version != 1 {
		t.Fatalf("unexpected blob version %d %v", version, err)
	}
}

func TestKeyRingFromEnviron(t *testing.T) {
	ring := KeyRingFromEnviron([]string{
		"PATH=/usr/bin",
		"ENCRYPTION_KEY=base",
		"ENCRYPTION_KEY_V2=second",
		"ENCRYPTION_KEY_V0=ignored",
		"ENCRYPTION_KEY_VX=ignored",
		"ENCRYPTION_KEY_V3=",
	})
	if secret, ok := ring.Secret(1); !ok || secret != "base" {
		t.Fatalf("expected v1 from ENCRYPTION_KEY, got %q", secret)
	}
	if secret, ok := ring.Secret(2); !ok || secret != "second" {
		t.Fatalf("expected v2 secret, got %q", secret)
	}
	if _, ok := ring.Secret(3); ok {
		t.Fatalf("expected empty secret to be skipped")
	}
	if ring.Latest() != 2 {
		t.Fatalf("expected latest version 2, got %d", ring.Latest())
	}

	explicit := KeyRingFromEnviron([]string{"ENCRYPTION_KEY_V1=explicit", "ENCRYPTION_KEY=base"})
	if secret, _ := explicit.Secret(1); secret != "explicit" {
		t.Fatalf("expected explicit v1 to win, got %q", secret)
	}
}
