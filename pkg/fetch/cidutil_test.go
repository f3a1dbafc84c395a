package fetch

import "testing"

func TestParseAndEncodeContentCID(t *testing.T) {
	c, err := ParseCID(SentinelEmptyDirCID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := EncodeContentCID(c); got != SentinelEmptyDirCID {
		t.Errorf("round trip = %q, want %q", got, SentinelEmptyDirCID)
	}
}

func TestEncodeKeyCIDUsesBase36(t *testing.T) {
	c, err := ParseCID(SentinelEmptyDirCID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	encoded := EncodeKeyCID(c)
	if len(encoded) == 0 || encoded[0] != 'k' {
		t.Errorf("base36 CID string should start with multibase prefix 'k', got %q", encoded)
	}
}

func TestIsSentinelEmptyDir(t *testing.T) {
	sentinel, err := ParseCID(SentinelEmptyDirCID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !IsSentinelEmptyDir(sentinel) {
		t.Error("expected sentinel CID to be recognized")
	}
	if IsSentinelEmptyDir(UndefCID) {
		t.Error("undefined CID must not be the sentinel")
	}

	other, err := ParseCID("bafkreigh2akiscaildcqabsyg3dfr6chu3fgpregiymsck7e7aqa4s52zy")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if IsSentinelEmptyDir(other) {
		t.Error("unrelated CID must not be the sentinel")
	}
}

func TestParseCIDRejectsGarbage(t *testing.T) {
	if _, err := ParseCID("not-a-cid"); err == nil {
		t.Fatal("expected error for malformed CID")
	}
}
