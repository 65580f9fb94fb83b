package job

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// MaxDescriptionBytes caps the description excerpt that goes into the embedding text.
const MaxDescriptionBytes = 4000

var (
	idSanitizer   = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)
	nonWord       = regexp.MustCompile(`[^\p{L}\p{N}_\s]+`)
	whitespaceRun = regexp.MustCompile(`\s+`)
)

// RawPosting is what a source adapter returns before normalization.
type RawPosting struct {
	NativeID    string
	Title       string
	Company     string
	Location    string
	URL         string
	PostedAt    string
	Tags        []string
	Description string
}

// Posting is a normalized job posting (immutable value object).
type Posting struct {
	id          string
	source      Source
	text        string
	metadata    Metadata
	fingerprint string
	embedding   []float32
}

// New normalizes a raw record into a Posting.
// NativeID and Title are required; the id is deterministic for a given source record.
func New(src Source, raw RawPosting) (Posting, error) {
	if !src.IsValid() {
		return Posting{}, fmt.Errorf("unknown source %q", src)
	}
	nativeID := strings.TrimSpace(raw.NativeID)
	if nativeID == "" {
		return Posting{}, fmt.Errorf("%s posting: native id is required", src)
	}
	title := collapse(raw.Title)
	if title == "" {
		return Posting{}, fmt.Errorf("%s posting %s: title is required", src, nativeID)
	}

	company := collapse(raw.Company)
	location := collapse(raw.Location)
	tags := cleanTags(raw.Tags)
	text := buildText(title, company, location, tags, raw.Description)

	var md Metadata
	md = md.with(MetaTitle, title).
		with(MetaCompany, company).
		with(MetaLocation, location).
		with(MetaURL, strings.TrimSpace(raw.URL)).
		with(MetaPostedAt, strings.TrimSpace(raw.PostedAt)).
		with(MetaSkills, strings.Join(mergeSkills(tags, ExtractSkills(text)), ","))

	return Posting{
		id:          ID(src, nativeID),
		source:      src,
		text:        text,
		metadata:    md,
		fingerprint: Fingerprint(text),
	}, nil
}

// Reconstruct creates a Posting without validation (storage hydration).
func Reconstruct(id string, src Source, text string, md Metadata, fingerprint string, vec []float32) Posting {
	return Posting{id: id, source: src, text: text, metadata: md, fingerprint: fingerprint, embedding: vec}
}

// ID builds the deterministic posting id: <source prefix>_<native id>. A native id
// outside [A-Za-z0-9_-] is sanitized and suffixed with "~" and a hash of the original,
// so distinct native ids never share a posting id.
func ID(src Source, nativeID string) string {
	nativeID = strings.TrimSpace(nativeID)
	clean := idSanitizer.ReplaceAllString(nativeID, "-")
	if clean == nativeID {
		return src.Prefix() + "_" + clean
	}
	sum := sha256.Sum256([]byte(nativeID))
	return src.Prefix() + "_" + clean + "~" + hex.EncodeToString(sum[:8])
}

// Fingerprint hashes the normalized text: lower-cased, punctuation stripped, whitespace collapsed.
func Fingerprint(text string) string {
	norm := strings.ToLower(text)
	norm = nonWord.ReplaceAllString(norm, "")
	norm = strings.TrimSpace(whitespaceRun.ReplaceAllString(norm, " "))
	sum := sha256.Sum256([]byte(norm))
	return hex.EncodeToString(sum[:])
}

// WithEmbedding returns a copy carrying vec.
func (p Posting) WithEmbedding(vec []float32) Posting {
	p.embedding = vec
	return p
}

// ID returns the posting identifier.
func (p *Posting) ID() string { return p.id }

// Source returns the originating source.
func (p *Posting) Source() Source { return p.source }

// Text returns the canonical embedding text.
func (p *Posting) Text() string { return p.text }

// Metadata returns the ordered metadata pairs.
func (p *Posting) Metadata() Metadata { return p.metadata }

// Fingerprint returns the content fingerprint.
func (p *Posting) Fingerprint() string { return p.fingerprint }

// Embedding returns the vector, nil until embedded.
func (p *Posting) Embedding() []float32 { return p.embedding }

func buildText(title, company, location string, tags []string, description string) string {
	parts := make([]string, 0, 5)
	parts = append(parts, "Position: "+title)
	if company != "" {
		parts = append(parts, "Company: "+company)
	}
	if location != "" {
		parts = append(parts, "Location: "+location)
	}
	if len(tags) > 0 {
		parts = append(parts, "Skills: "+strings.Join(tags, ", "))
	}
	if d := excerpt(strings.TrimSpace(description), MaxDescriptionBytes); d != "" {
		parts = append(parts, "Description: "+d)
	}
	return strings.Join(parts, "\n\n")
}

// excerpt truncates s to at most n bytes without splitting a rune.
func excerpt(s string, n int) string {
	if len(s) <= n {
		return s
	}
	s = s[:n]
	for !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}
	return s
}

func collapse(s string) string {
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(s, " "))
}

func cleanTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, t := range tags {
		t = collapse(t)
		key := strings.ToLower(t)
		if t == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, t)
	}
	return out
}
