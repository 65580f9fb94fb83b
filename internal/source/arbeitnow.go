package source

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kailas-cloud/jobdex/internal/domain/job"
)

// ArbeitNow reads the ArbeitNow job board API.
type ArbeitNow struct {
	fetcher *Fetcher
	url     string
}

// NewArbeitNow creates the ArbeitNow adapter.
func NewArbeitNow(f *Fetcher, apiURL string) *ArbeitNow {
	return &ArbeitNow{fetcher: f, url: apiURL}
}

// Name returns job.ArbeitNow.
func (a *ArbeitNow) Name() job.Source { return job.ArbeitNow }

type arbeitNowResponse struct {
	Data []arbeitNowJob `json:"data"`
}

type arbeitNowJob struct {
	Slug        string   `json:"slug"`
	Title       string   `json:"title"`
	CompanyName string   `json:"company_name"`
	Location    string   `json:"location"`
	Remote      bool     `json:"remote"`
	Tags        []string `json:"tags"`
	JobTypes    []string `json:"job_types"`
	Description string   `json:"description"`
	URL         string   `json:"url"`
	CreatedAt   int64    `json:"created_at"`
}

// Fetch downloads one page of the board.
func (a *ArbeitNow) Fetch(ctx context.Context) ([]job.RawPosting, error) {
	body, err := a.fetcher.Get(ctx, a.url)
	if err != nil {
		return nil, err
	}

	var resp arbeitNowResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode arbeitnow response: %w", err)
	}

	out := make([]job.RawPosting, 0, len(resp.Data))
	for _, j := range resp.Data {
		location := j.Location
		if j.Remote && location == "" {
			location = "Remote"
		}
		var posted string
		if j.CreatedAt > 0 {
			posted = time.Unix(j.CreatedAt, 0).UTC().Format(time.RFC3339)
		}
		out = append(out, job.RawPosting{
			NativeID:    j.Slug,
			Title:       j.Title,
			Company:     j.CompanyName,
			Location:    location,
			URL:         j.URL,
			PostedAt:    posted,
			Tags:        j.Tags,
			Description: withTypes(HTMLToText(j.Description), j.JobTypes),
		})
	}
	return out, nil
}

func withTypes(desc string, types []string) string {
	t := joinNonEmpty(types, ", ")
	if t == "" {
		return desc
	}
	return "Type: " + t + "\n" + desc
}
