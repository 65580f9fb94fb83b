package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/kailas-cloud/jobdex/internal/domain/job"
)

// RemoteOK reads the RemoteOK public API.
type RemoteOK struct {
	fetcher *Fetcher
	url     string
}

// NewRemoteOK creates the RemoteOK adapter.
func NewRemoteOK(f *Fetcher, apiURL string) *RemoteOK {
	return &RemoteOK{fetcher: f, url: apiURL}
}

// Name returns job.RemoteOK.
func (r *RemoteOK) Name() job.Source { return job.RemoteOK }

type remoteOKJob struct {
	ID          flexID   `json:"id"`
	Position    string   `json:"position"`
	Company     string   `json:"company"`
	Location    string   `json:"location"`
	Tags        []string `json:"tags"`
	Description string   `json:"description"`
	URL         string   `json:"url"`
	Date        string   `json:"date"`
}

// Fetch downloads the feed. The first array element is a legal notice, not a job.
func (r *RemoteOK) Fetch(ctx context.Context) ([]job.RawPosting, error) {
	body, err := r.fetcher.Get(ctx, r.url)
	if err != nil {
		return nil, err
	}

	var items []json.RawMessage
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, fmt.Errorf("decode remoteok feed: %w", err)
	}
	if len(items) <= 1 {
		return []job.RawPosting{}, nil
	}

	out := make([]job.RawPosting, 0, len(items)-1)
	for _, item := range items[1:] {
		var j remoteOKJob
		if err := json.Unmarshal(item, &j); err != nil {
			// skip malformed entries, the record counts as absent
			continue
		}
		location := j.Location
		if location == "" {
			location = "Remote"
		}
		out = append(out, job.RawPosting{
			NativeID:    string(j.ID),
			Title:       j.Position,
			Company:     j.Company,
			Location:    location,
			URL:         j.URL,
			PostedAt:    j.Date,
			Tags:        j.Tags,
			Description: HTMLToText(j.Description),
		})
	}
	return out, nil
}

// flexID accepts both string and numeric JSON ids.
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("id: %w", err)
	}
	if i, err := n.Int64(); err == nil {
		*f = flexID(strconv.FormatInt(i, 10))
		return nil
	}
	*f = flexID(n.String())
	return nil
}
