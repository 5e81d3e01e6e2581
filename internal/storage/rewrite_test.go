package storage

import "testing"

func TestRewriteLinks(t *testing.T) {
	s := tempVault(t)
	_ = s.Write("a.md", []byte("see [[Old Name]] here"))
	_ = s.Write("b.md", []byte("alias link [[Old Name|shown text]] stays aliased"))
	_ = s.Write("c.md", []byte("unrelated [[Other Note]]"))

	n, err := s.RewriteLinks("Old Name", "New Name")
	if err != nil {
		t.Fatalf("RewriteLinks: %v", err)
	}
	if n != 2 {
		t.Errorf("modified = %d, want 2", n)
	}

	got, _ := s.Read("a.md")
	if string(got) != "see [[New Name]] here" {
		t.Errorf("a.md = %q", got)
	}
	got, _ = s.Read("b.md")
	if string(got) != "alias link [[New Name|shown text]] stays aliased" {
		t.Errorf("b.md = %q", got)
	}
	got, _ = s.Read("c.md")
	if string(got) != "unrelated [[Other Note]]" {
		t.Errorf("c.md = %q", got)
	}
}

func TestRewriteLinks_EscapesRegexMeta(t *testing.T) {
	s := tempVault(t)
	_ = s.Write("a.md", []byte("link [[Q (draft)]] end"))

	n, err := s.RewriteLinks("Q (draft)", "Q Final")
	if err != nil {
		t.Fatalf("RewriteLinks: %v", err)
	}
	if n != 1 {
		t.Errorf("modified = %d, want 1", n)
	}
	got, _ := s.Read("a.md")
	if string(got) != "link [[Q Final]] end" {
		t.Errorf("a.md = %q", got)
	}
}

func TestRewriteLinks_NoMatches(t *testing.T) {
	s := tempVault(t)
	_ = s.Write("a.md", []byte("nothing to do"))
	n, err := s.RewriteLinks("Missing", "Whatever")
	if err != nil {
		t.Fatalf("RewriteLinks: %v", err)
	}
	if n != 0 {
		t.Errorf("modified = %d, want 0", n)
	}
}
