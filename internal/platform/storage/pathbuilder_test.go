package storage

import "testing"

func TestPageObjectPath(t *testing.T) {
	path, err := PageObjectPath("", "en", "privacy-policy")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	expected := "legal/en/privacy-policy.md"
	if path != expected {
		t.Fatalf("expected %s, got %s", expected, path)
	}
}

func TestPageObjectPathHonoursPrefix(t *testing.T) {
	path, err := PageObjectPath("/site/pages/", "hi", "shipping-policy")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if path != "site/pages/hi/shipping-policy.md" {
		t.Fatalf("unexpected path %s", path)
	}
}

func TestPageObjectPathRejectsInvalidSegment(t *testing.T) {
	cases := []struct{ lang, slug string }{
		{"en", "../secrets"},
		{"en/..", "terms"},
		{"", "terms"},
		{"en", " "},
	}
	for _, tc := range cases {
		if _, err := PageObjectPath("", tc.lang, tc.slug); err == nil {
			t.Fatalf("expected error for lang=%q slug=%q", tc.lang, tc.slug)
		}
	}
}
