package store

import "testing"

func TestFingerprint(t *testing.T) {
	a := Fingerprint([]byte("S1\t2021\tQ01\t1.0\n"))
	b := Fingerprint([]byte("S1\t2021\tQ01\t1.0\n"))
	c := Fingerprint([]byte("S1\t2021\tQ01\t2.0\n"))

	if a != b {
		t.Error("identical payloads should fingerprint identically")
	}
	if a == c {
		t.Error("different payloads should fingerprint differently")
	}
	if len(a) != 64 {
		t.Errorf("fingerprint length = %d, want 64 hex chars", len(a))
	}
}

func TestEscapeKey(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{"pr.data.0.Current", "pr.data.0.Current"},
		{"pub/time.series/pr/pr.data.0.Current", "pub/time.series/pr/pr.data.0.Current"},
		{"reports/file with space.json", "reports/file%20with%20space.json"},
	}

	for _, tt := range tests {
		if got := escapeKey(tt.key); got != tt.want {
			t.Errorf("escapeKey(%q) = %q, want %q", tt.key, got, tt.want)
		}
	}
}
