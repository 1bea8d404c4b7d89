package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"parley/internal/domain"
)

// GeoScorer is the read-only geospatial scoring oracle. Scores are only used
// to enrich prompts handed to the text-generation collaborator.
type GeoScorer interface {
	Score(ctx context.Context, lat, lon float64) (domain.GeoScore, error)
}

// GeoClient queries a scoring service over HTTP.
type GeoClient struct {
	BaseURL string
	Client  *http.Client
}

// NewGeoClient builds a scorer for the given service base URL.
func NewGeoClient(baseURL string) *GeoClient {
	return &GeoClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  &http.Client{Timeout: defaultHTTPTimeout},
	}
}

// Score fetches the composite suitability score for a coordinate.
func (g *GeoClient) Score(ctx context.Context, lat, lon float64) (domain.GeoScore, error) {
	if strings.TrimSpace(g.BaseURL) == "" {
		return domain.GeoScore{}, fmt.Errorf("geo scoring service not configured")
	}
	url := fmt.Sprintf("%s/score?lat=%f&lon=%f", g.BaseURL, lat, lon)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return domain.GeoScore{}, err
	}
	client := g.Client
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	res, err := client.Do(req)
	if err != nil {
		return domain.GeoScore{}, err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return domain.GeoScore{}, fmt.Errorf("geo service status %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}
	var score domain.GeoScore
	if err := json.NewDecoder(res.Body).Decode(&score); err != nil {
		return domain.GeoScore{}, fmt.Errorf("decode geo score: %w", err)
	}
	return score, nil
}
