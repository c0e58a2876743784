package emergency

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ashureev/vetcheck/internal/domain"
)

// DefaultNominatimURL is the public OpenStreetMap search endpoint.
const DefaultNominatimURL = "https://nominatim.openstreetmap.org"

const nominatimUserAgent = "VetCheck/1.0 (veterinary triage assistant)"

// viewboxDegrees is the half-width of the search box around the caller.
const viewboxDegrees = 0.1

// NominatimClient searches OpenStreetMap for veterinary clinics.
type NominatimClient struct {
	baseURL string
	client  *http.Client
}

// NewNominatimClient creates a client. A nil httpClient gets a 10s timeout.
func NewNominatimClient(baseURL string, httpClient *http.Client) *NominatimClient {
	if baseURL == "" {
		baseURL = DefaultNominatimURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &NominatimClient{baseURL: strings.TrimRight(baseURL, "/"), client: httpClient}
}

type nominatimPlace struct {
	DisplayName string `json:"display_name"`
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
}

// Search queries clinics inside a bounded viewbox and keeps those within radiusKm.
func (c *NominatimClient) Search(ctx context.Context, center domain.GeoPoint, radiusKm float64) ([]domain.VetLocation, error) {
	q := url.Values{}
	q.Set("format", "json")
	q.Set("q", "veterinary clinic")
	q.Set("lat", strconv.FormatFloat(center.Latitude, 'f', 6, 64))
	q.Set("lon", strconv.FormatFloat(center.Longitude, 'f', 6, 64))
	q.Set("bounded", "1")
	q.Set("viewbox", fmt.Sprintf("%f,%f,%f,%f",
		center.Longitude-viewboxDegrees, center.Latitude+viewboxDegrees,
		center.Longitude+viewboxDegrees, center.Latitude-viewboxDegrees))
	q.Set("limit", strconv.Itoa(MaxResults))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/search?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build nominatim request: %w", err)
	}
	req.Header.Set("User-Agent", nominatimUserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, domain.Unavailable("nominatim", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, domain.Unavailable("nominatim", fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))))
	}

	var places []nominatimPlace
	if err := json.NewDecoder(resp.Body).Decode(&places); err != nil {
		return nil, domain.Internal("decode nominatim response", err)
	}

	out := make([]domain.VetLocation, 0, len(places))
	for _, p := range places {
		v, ok := placeToLocation(p)
		if !ok {
			continue
		}
		out = append(out, v)
	}
	return withinRadius(out, center, radiusKm), nil
}

func placeToLocation(p nominatimPlace) (domain.VetLocation, bool) {
	lat, err := strconv.ParseFloat(p.Lat, 64)
	if err != nil {
		return domain.VetLocation{}, false
	}
	lon, err := strconv.ParseFloat(p.Lon, 64)
	if err != nil {
		return domain.VetLocation{}, false
	}

	name := p.DisplayName
	if name == "" {
		name = "Veterinary Clinic"
	}
	address := name
	if i := strings.Index(name, ","); i >= 0 {
		name = name[:i]
	}
	lower := strings.ToLower(name)
	return domain.VetLocation{
		Name:              name,
		Address:           address,
		Phone:             "Contact for phone number",
		Latitude:          lat,
		Longitude:         lon,
		IsEmergencyClinic: strings.Contains(lower, "emergency") || strings.Contains(lower, "24"),
		Hours:             "Contact for hours",
	}, true
}
