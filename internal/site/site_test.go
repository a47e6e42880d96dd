package site

import (
	"strings"
	"testing"
)

func TestParseBareHost(t *testing.T) {
	id, err := Parse("example.com", "")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if id.Canonical != "https://example.com/" {
		t.Errorf("expected https://example.com/, got %q", id.Canonical)
	}
	if id.Host() != "example.com" {
		t.Errorf("expected host example.com, got %q", id.Host())
	}
}

func TestParseIgnoresQueryAndFragment(t *testing.T) {
	a, _ := Parse("https://Example.com/docs?page=2#top", "")
	b, _ := Parse("https://example.com/docs", "")
	if a.String() != b.String() {
		t.Errorf("expected equal identities, got %q and %q", a, b)
	}
}

func TestParsePathMatters(t *testing.T) {
	a, _ := Parse("https://example.com/a", "")
	b, _ := Parse("https://example.com/b", "")
	if a.String() == b.String() || a.FileName() == b.FileName() {
		t.Error("different paths should yield different identities")
	}
}

func TestTokenDisambiguates(t *testing.T) {
	a, _ := Parse("https://example.com/", "")
	b, _ := Parse("https://example.com/", "mobile")
	if a.String() == b.String() {
		t.Error("token should change the identity")
	}
	if b.String() != "https://example.com/#mobile" {
		t.Errorf("unexpected identity %q", b.String())
	}
}

func TestFileName(t *testing.T) {
	id, _ := Parse("https://www.example.com:8443/shop", "")
	name := id.FileName()
	if !strings.HasPrefix(name, "example.com_") {
		t.Errorf("expected host prefix, got %q", name)
	}
	if len(id.Hash()) < 8 {
		t.Errorf("hash too short: %q", id.Hash())
	}
	if strings.ContainsAny(name, "/:?#") {
		t.Errorf("file name is not filesystem safe: %q", name)
	}
}

func TestIDNAHost(t *testing.T) {
	id, err := Parse("https://bücher.example/", "")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if id.Host() != "xn--bcher-kva.example" {
		t.Errorf("expected punycode host, got %q", id.Host())
	}
}

func TestParseErrors(t *testing.T) {
	for _, raw := range []string{"", "   ", "https://"} {
		if _, err := Parse(raw, ""); err == nil {
			t.Errorf("expected error for %q", raw)
		}
	}
}

func TestNavigationURL(t *testing.T) {
	cases := map[string]string{
		"example.com":                       "https://example.com",
		"  example.com/docs?page=2  ":       "https://example.com/docs?page=2",
		"http://localhost:8080/a#top":       "http://localhost:8080/a#top",
		"https://example.com/search?q=shoe": "https://example.com/search?q=shoe",
	}
	for in, want := range cases {
		got, err := NavigationURL(in)
		if err != nil {
			t.Errorf("NavigationURL(%q): %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("NavigationURL(%q) = %q, want %q", in, got, want)
		}
	}

	for _, bad := range []string{"", "   ", "https://"} {
		if _, err := NavigationURL(bad); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
}
