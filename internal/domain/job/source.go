package job

import "fmt"

// Source identifies the upstream a posting was scraped from.
type Source string

// Known sources.
const (
	HackerNews Source = "hn"
	RemoteOK   Source = "remoteok"
	ArbeitNow  Source = "arbeitnow"
	TheMuse    Source = "themuse"
)

type sourceInfo struct {
	prefix  string
	display string
}

// Adding a source is a registry entry; ranking code never switches on Source.
var registry = map[Source]sourceInfo{
	HackerNews: {prefix: "hn", display: "Hacker News"},
	RemoteOK:   {prefix: "ro", display: "RemoteOK"},
	ArbeitNow:  {prefix: "an", display: "ArbeitNow"},
	TheMuse:    {prefix: "tm", display: "The Muse"},
}

// ParseSource resolves a configured source name.
func ParseSource(s string) (Source, error) {
	src := Source(s)
	if !src.IsValid() {
		return "", fmt.Errorf("unknown source %q", s)
	}
	return src, nil
}

// IsValid reports whether the source is registered.
func (s Source) IsValid() bool {
	_, ok := registry[s]
	return ok
}

// Prefix returns the id prefix for postings of this source.
func (s Source) Prefix() string { return registry[s].prefix }

// DisplayName returns a human readable source name.
func (s Source) DisplayName() string {
	if info, ok := registry[s]; ok {
		return info.display
	}
	return string(s)
}
