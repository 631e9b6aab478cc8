package fingerprint

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFingerprintReadsSizeAndMTime(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "track.flac")
	if err := os.WriteFile(path, []byte("hello world"), 0o644); err != nil {
		t.Fatal(err)
	}

	fp, err := Fingerprint(path)
	if err != nil {
		t.Fatalf("Fingerprint: %v", err)
	}
	if fp.Size != int64(len("hello world")) {
		t.Errorf("Size = %d, want %d", fp.Size, len("hello world"))
	}
	if fp.MTimeSeconds <= 0 {
		t.Errorf("MTimeSeconds = %v, want > 0", fp.MTimeSeconds)
	}
}

func TestFingerprintMissingFile(t *testing.T) {
	if _, err := Fingerprint(filepath.Join(t.TempDir(), "nope.flac")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestMatches(t *testing.T) {
	cases := []struct {
		name string
		a, b FileFingerprint
		want bool
	}{
		{"identical", FileFingerprint{100, 1700000000.0}, FileFingerprint{100, 1700000000.0}, true},
		{"different size", FileFingerprint{100, 1700000000.0}, FileFingerprint{101, 1700000000.0}, false},
		{"within tolerance", FileFingerprint{100, 1700000000.0}, FileFingerprint{100, 1700000000.004}, true},
		{"outside tolerance", FileFingerprint{100, 1700000000.0}, FileFingerprint{100, 1700000000.5}, false},
		{"negative diff within tolerance", FileFingerprint{100, 1700000000.004}, FileFingerprint{100, 1700000000.0}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Matches(tc.a, tc.b, DefaultEpsilon); got != tc.want {
				t.Errorf("Matches(%v, %v) = %v, want %v", tc.a, tc.b, got, tc.want)
			}
		})
	}
}

func TestMatchesCustomEpsilon(t *testing.T) {
	a := FileFingerprint{100, 1700000000.0}
	b := FileFingerprint{100, 1700000000.05}
	if Matches(a, b, DefaultEpsilon) {
		t.Fatal("expected mismatch at default epsilon")
	}
	if !Matches(a, b, 100*time.Millisecond) {
		t.Fatal("expected match at relaxed epsilon")
	}
}
