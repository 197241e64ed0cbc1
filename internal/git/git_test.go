package git

import "testing"

func TestIsCommitHash(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   string
		want bool
	}{
		{"sha1", "0123456789abcdef0123456789abcdef01234567", true},
		{"sha1 upper", "0123456789ABCDEF0123456789ABCDEF01234567", true},
		{"sha256", "6c7e78a0daacc7bd36f4e312e0557cdaffa2a74b9f0a3e5cfdcfb75460f8b8ae", true},
		{"short", "abc123", false},
		{"empty", "", false},
		{"ref name", "refs/heads/main", false},
		{"non hex", "z123456789abcdef0123456789abcdef01234567", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsCommitHash(tc.in); got != tc.want {
				t.Fatalf("IsCommitHash(%q) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}
}

func TestParseModules(t *testing.T) {
	t.Parallel()

	const gitmodules = `[submodule "third_party/b"]
	path = third_party/b
	url = https://example.com/org/b.git
[submodule "third_party/a"]
	path = third_party/a
	url = git@example.com:org/a.git
`
	subs, err := parseModules([]byte(gitmodules))
	if err != nil {
		t.Fatalf("parseModules: %v", err)
	}
	if len(subs) != 2 {
		t.Fatalf("expected 2 submodules, got %d: %+v", len(subs), subs)
	}
	// Sorted by path regardless of declaration order.
	if subs[0].Path != "third_party/a" || subs[1].Path != "third_party/b" {
		t.Fatalf("unexpected order: %+v", subs)
	}
	if subs[0].URL != "git@example.com:org/a.git" {
		t.Fatalf("unexpected url: %q", subs[0].URL)
	}
	if subs[0].Revision != "" {
		t.Fatalf("revision should be unset before tree lookup, got %q", subs[0].Revision)
	}
}

func TestParseModules_Empty(t *testing.T) {
	t.Parallel()

	subs, err := parseModules(nil)
	if err != nil {
		t.Fatalf("parseModules: %v", err)
	}
	if len(subs) != 0 {
		t.Fatalf("expected no submodules, got %+v", subs)
	}
}
