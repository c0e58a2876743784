// Package emergency finds nearby emergency veterinary care and supplies the
// hotline numbers and first-response instructions shown with urgent verdicts.
package emergency

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/ashureev/vetcheck/internal/domain"
	"github.com/ashureev/vetcheck/internal/telemetry"
)

const (
	// DefaultRadiusKm bounds ContactInfo lookups.
	DefaultRadiusKm = 50.0
	// MaxResults caps FindNearby.
	MaxResults = 10
	// NearestEmergencyCount is how many clinics ContactInfo returns.
	NearestEmergencyCount = 3

	earthRadiusKm = 6371.0
	clinicHours   = "24/7 Emergency Care"
)

// Searcher is an external directory queried before the built-in clinic list.
type Searcher interface {
	Search(ctx context.Context, center domain.GeoPoint, radiusKm float64) ([]domain.VetLocation, error)
}

// Contacts is the bundle returned alongside emergency-tier verdicts.
type Contacts struct {
	NearestEmergencyVets []domain.VetLocation `json:"nearest_emergency_vets"`
	EmergencyHotline     string               `json:"emergency_hotline"`
	PoisonControl        string               `json:"poison_control_hotline"`
	PreparationTips      []string             `json:"preparation_tips"`
}

var defaultClinics = []domain.VetLocation{
	{Name: "24/7 Emergency Vet Clinic", Address: "123 Emergency St, City Center", Phone: "+1-555-0911", Latitude: 45.3311, Longitude: -75.6981, Rating: 4.6},
	{Name: "Animal Emergency Hospital", Address: "456 Rescue Ave, Downtown", Phone: "+1-555-0922", Latitude: 45.3411, Longitude: -75.7081, Rating: 4.5},
	{Name: "Pet Emergency Care", Address: "789 Urgent Blvd, Westside", Phone: "+1-555-0933", Latitude: 45.3211, Longitude: -75.6881, Rating: 4.4},
	{Name: "Critical Pet Care Center", Address: "321 Lifesaver Rd, Eastside", Phone: "+1-555-0944", Latitude: 45.3511, Longitude: -75.7181, Rating: 4.7},
	{Name: "Emergency Animal Services", Address: "654 Rapid Response Way, Northside", Phone: "+1-555-0955", Latitude: 45.3611, Longitude: -75.6781, Rating: 4.3},
}

// Service answers nearby-care and guidance queries.
type Service struct {
	clinics  []domain.VetLocation
	searcher Searcher
	logger   *slog.Logger
	metrics  *telemetry.Instruments
}

// Option configures a Service.
type Option func(*Service)

// WithSearcher enables an external directory lookup ahead of the built-in list.
func WithSearcher(s Searcher) Option { return func(svc *Service) { svc.searcher = s } }

// WithClinics replaces the built-in clinic list.
func WithClinics(c []domain.VetLocation) Option {
	return func(svc *Service) { svc.clinics = append([]domain.VetLocation(nil), c...) }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(svc *Service) {
		if l != nil {
			svc.logger = l
		}
	}
}

// WithInstruments records lookup metrics.
func WithInstruments(i *telemetry.Instruments) Option { return func(svc *Service) { svc.metrics = i } }

// NewService creates a Service backed by the default clinic list.
func NewService(opts ...Option) *Service {
	svc := &Service{clinics: defaultClinics, logger: slog.Default()}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// FindNearby returns up to MaxResults clinics within radiusKm of center,
// nearest first. The external searcher is tried first; its failure or an
// empty answer falls back to the built-in list. With no center every
// built-in clinic is returned unsorted.
func (s *Service) FindNearby(ctx context.Context, center *domain.GeoPoint, radiusKm float64) []domain.VetLocation {
	if center != nil && s.searcher != nil {
		start := time.Now()
		found, err := s.searcher.Search(ctx, *center, radiusKm)
		switch {
		case err != nil:
			s.logger.Warn("Clinic search failed, using built-in list", "error", err)
			s.metrics.RecordProvider(ctx, "lookup", "nominatim", telemetry.OutcomeFailed, time.Since(start))
		case len(found) == 0:
			s.metrics.RecordProvider(ctx, "lookup", "nominatim", telemetry.OutcomeFallback, time.Since(start))
		default:
			s.metrics.RecordProvider(ctx, "lookup", "nominatim", telemetry.OutcomeOK, time.Since(start))
			return limit(withinRadius(found, *center, radiusKm), MaxResults)
		}
	}

	out := make([]domain.VetLocation, 0, len(s.clinics))
	for _, c := range s.clinics {
		c.IsEmergencyClinic = true
		c.Hours = clinicHours
		out = append(out, c)
	}
	if center == nil {
		return limit(out, MaxResults)
	}
	return limit(withinRadius(out, *center, radiusKm), MaxResults)
}

// ContactInfo bundles the nearest emergency clinics with hotline numbers.
// A nil center skips the clinic lookup.
func (s *Service) ContactInfo(ctx context.Context, center *domain.GeoPoint) Contacts {
	c := Contacts{
		NearestEmergencyVets: []domain.VetLocation{},
		EmergencyHotline:     Hotline,
		PoisonControl:        PoisonControlHotline,
		PreparationTips:      PreparationTips(),
	}
	if center == nil {
		return c
	}
	for _, v := range s.FindNearby(ctx, center, DefaultRadiusKm) {
		if !v.IsEmergencyClinic {
			continue
		}
		c.NearestEmergencyVets = append(c.NearestEmergencyVets, v)
		if len(c.NearestEmergencyVets) == NearestEmergencyCount {
			break
		}
	}
	return c
}

// withinRadius stamps distances, drops far entries and sorts nearest first.
func withinRadius(in []domain.VetLocation, center domain.GeoPoint, radiusKm float64) []domain.VetLocation {
	out := make([]domain.VetLocation, 0, len(in))
	for _, v := range in {
		d := Distance(center, domain.GeoPoint{Latitude: v.Latitude, Longitude: v.Longitude})
		if d > radiusKm {
			continue
		}
		v.DistanceKm = math.Round(d*100) / 100
		out = append(out, v)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].DistanceKm < out[j].DistanceKm })
	return out
}

func limit(v []domain.VetLocation, n int) []domain.VetLocation {
	if len(v) > n {
		return v[:n]
	}
	return v
}

// Distance is the haversine great-circle distance in kilometres.
func Distance(a, b domain.GeoPoint) float64 {
	toRad := func(deg float64) float64 { return deg * math.Pi / 180 }
	dLat := toRad(b.Latitude - a.Latitude)
	dLon := toRad(b.Longitude - a.Longitude)
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(a.Latitude))*math.Cos(toRad(b.Latitude))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}
