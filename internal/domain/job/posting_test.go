package job

import (
	"strings"
	"testing"
)

func TestNew_BuildsCanonicalText(t *testing.T) {
	p, err := New(RemoteOK, RawPosting{
		NativeID:    "12345",
		Title:       "  Senior   Go Engineer ",
		Company:     "Acme",
		Location:    "Remote",
		Tags:        []string{"go", "kubernetes", "Go"},
		Description: "Build distributed systems with Postgresql.",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := "Position: Senior Go Engineer\n\nCompany: Acme\n\nLocation: Remote\n\n" +
		"Skills: go, kubernetes\n\nDescription: Build distributed systems with Postgresql."
	if p.Text() != want {
		t.Errorf("text =\n%q\nwant\n%q", p.Text(), want)
	}
	if p.ID() != "ro_12345" {
		t.Errorf("id = %q, want ro_12345", p.ID())
	}
	if p.Source() != RemoteOK {
		t.Errorf("source = %q", p.Source())
	}
}

func TestNew_OmitsEmptyParts(t *testing.T) {
	p, err := New(HackerNews, RawPosting{NativeID: "1", Title: "Backend dev"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Text() != "Position: Backend dev" {
		t.Errorf("text = %q", p.Text())
	}
	if _, ok := p.Metadata().Get(MetaLocation); ok {
		t.Error("empty location must not be stored")
	}
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name string
		src  Source
		raw  RawPosting
	}{
		{"unknown source", Source("monster"), RawPosting{NativeID: "1", Title: "x"}},
		{"missing id", TheMuse, RawPosting{Title: "x"}},
		{"missing title", TheMuse, RawPosting{NativeID: "1", Title: "   "}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := New(tc.src, tc.raw); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestNew_MetadataOrder(t *testing.T) {
	p, err := New(ArbeitNow, RawPosting{
		NativeID: "slug-1", Title: "Data Engineer", Company: "Beta",
		Location: "Berlin", URL: "https://example.com/j/1",
		Description: "We use Python and Kafka daily.",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	keys := make([]string, 0, len(p.Metadata()))
	for _, f := range p.Metadata() {
		keys = append(keys, f.Key)
	}
	want := "title,company,location,url,skills"
	if strings.Join(keys, ",") != want {
		t.Errorf("keys = %v, want %s", keys, want)
	}
	skills, _ := p.Metadata().Get(MetaSkills)
	if skills != "kafka,python" {
		t.Errorf("skills = %q, want kafka,python", skills)
	}
}

func TestID_SanitizedIDsDoNotCollide(t *testing.T) {
	ids := map[string]string{}
	for _, native := range []string{"a-b", "a b", "a/b", "a  b", "a--b"} {
		id := ID(HackerNews, native)
		if prev, ok := ids[id]; ok {
			t.Errorf("native ids %q and %q share id %q", prev, native, id)
		}
		ids[id] = native
	}
	if ID(HackerNews, "a-b") != "hn_a-b" {
		t.Errorf("clean ids are kept verbatim, got %q", ID(HackerNews, "a-b"))
	}
}

func TestID_Deterministic(t *testing.T) {
	if ID(HackerNews, "4242") != "hn_4242" {
		t.Errorf("got %q", ID(HackerNews, "4242"))
	}
	if got := ID(TheMuse, "a b/c"); !strings.HasPrefix(got, "tm_a-b-c~") || len(got) != len("tm_a-b-c~")+16 {
		t.Errorf("got %q", got)
	}
	if ID(HackerNews, " 4242 ") != "hn_4242" {
		t.Error("surrounding whitespace is not part of the id")
	}
	if ID(ArbeitNow, "x") != ID(ArbeitNow, "x") {
		t.Error("ids must be stable")
	}
}

func TestFingerprint_NormalizesText(t *testing.T) {
	a := Fingerprint("Senior Go Engineer!!  at   ACME.")
	b := Fingerprint("senior go engineer at acme")
	if a != b {
		t.Errorf("fingerprints differ: %s vs %s", a, b)
	}
	if len(a) != 64 {
		t.Errorf("expected sha256 hex, got %d chars", len(a))
	}
	if Fingerprint("go engineer") == Fingerprint("rust engineer") {
		t.Error("different texts must not collide")
	}
}

func TestExcerpt_RuneSafe(t *testing.T) {
	s := strings.Repeat("é", 10) // 2 bytes each
	got := excerpt(s, 5)
	if got != "éé" {
		t.Errorf("excerpt = %q, want éé", got)
	}
}

func TestExtractSkills(t *testing.T) {
	got := ExtractSkills("Looking for C++ and Node.js folks; golang is a plus. Gopher wanted.")
	want := "c++,golang,node.js"
	if strings.Join(got, ",") != want {
		t.Errorf("skills = %v, want %s", got, want)
	}
}

func TestSourceRegistry(t *testing.T) {
	for _, s := range []Source{HackerNews, RemoteOK, ArbeitNow, TheMuse} {
		if !s.IsValid() || s.Prefix() == "" {
			t.Errorf("%q not registered", s)
		}
	}
	if _, err := ParseSource("linkedin"); err == nil {
		t.Error("expected error for unknown source")
	}
	if Source("x").DisplayName() != "x" {
		t.Error("unknown source display name should echo the value")
	}
}
