package source

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/kailas-cloud/jobdex/internal/domain/job"
)

// TheMuse reads The Muse public jobs API.
type TheMuse struct {
	fetcher *Fetcher
	url     string
}

// NewTheMuse creates The Muse adapter.
func NewTheMuse(f *Fetcher, apiURL string) *TheMuse {
	return &TheMuse{fetcher: f, url: apiURL}
}

// Name returns job.TheMuse.
func (m *TheMuse) Name() job.Source { return job.TheMuse }

type museName struct {
	Name string `json:"name"`
}

type museResponse struct {
	Results []museJob `json:"results"`
}

type museJob struct {
	ID              int64      `json:"id"`
	Name            string     `json:"name"`
	Company         museName   `json:"company"`
	Locations       []museName `json:"locations"`
	Categories      []museName `json:"categories"`
	Levels          []museName `json:"levels"`
	Contents        string     `json:"contents"`
	PublicationDate string     `json:"publication_date"`
	Refs            struct {
		LandingPage string `json:"landing_page"`
	} `json:"refs"`
}

// Fetch downloads one page of results.
func (m *TheMuse) Fetch(ctx context.Context) ([]job.RawPosting, error) {
	body, err := m.fetcher.Get(ctx, m.url)
	if err != nil {
		return nil, err
	}

	var resp museResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode themuse response: %w", err)
	}

	out := make([]job.RawPosting, 0, len(resp.Results))
	for _, j := range resp.Results {
		var id string
		if j.ID != 0 {
			id = strconv.FormatInt(j.ID, 10)
		}

		desc := HTMLToText(j.Contents)
		var header []string
		if c := names(j.Categories); len(c) > 0 {
			header = append(header, "Categories: "+strings.Join(c, ", "))
		}
		if l := names(j.Levels); len(l) > 0 {
			header = append(header, "Levels: "+strings.Join(l, ", "))
		}
		if len(header) > 0 {
			desc = strings.Join(header, "\n") + "\n" + desc
		}

		out = append(out, job.RawPosting{
			NativeID:    id,
			Title:       j.Name,
			Company:     j.Company.Name,
			Location:    joinNonEmpty(names(j.Locations), "; "),
			URL:         j.Refs.LandingPage,
			PostedAt:    j.PublicationDate,
			Description: desc,
		})
	}
	return out, nil
}

func names(in []museName) []string {
	out := make([]string, 0, len(in))
	for _, n := range in {
		out = append(out, n.Name)
	}
	return out
}

func joinNonEmpty(in []string, sep string) string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return strings.Join(out, sep)
}
