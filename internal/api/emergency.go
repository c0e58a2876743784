package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/ashureev/vetcheck/internal/domain"
	"github.com/ashureev/vetcheck/internal/emergency"
)

// NearbyVets lists clinics around ?lat&lon within ?radius km.
func (h *Handler) NearbyVets(w http.ResponseWriter, r *http.Request) {
	center, err := queryPoint(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	radius := h.radiusKm
	if raw := r.URL.Query().Get("radius"); raw != "" {
		radius, err = strconv.ParseFloat(raw, 64)
		if err != nil || radius <= 0 {
			Error(w, http.StatusBadRequest, "radius must be a positive number")
			return
		}
	}
	vets := h.directory.FindNearby(r.Context(), center, radius)
	JSON(w, http.StatusOK, map[string]any{"vets": vets, "count": len(vets), "radius_km": radius})
}

// Contacts returns hotlines, preparation tips and the nearest emergency clinics.
func (h *Handler) Contacts(w http.ResponseWriter, r *http.Request) {
	center, err := queryPoint(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	JSON(w, http.StatusOK, h.directory.ContactInfo(r.Context(), center))
}

// Instructions returns first-aid guidance for ?urgency and optional ?symptoms=a,b.
func (h *Handler) Instructions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	u, ok := domain.ParseUrgency(q.Get("urgency"))
	if !ok {
		Error(w, http.StatusBadRequest, "urgency must be one of LOW, MEDIUM, HIGH, CRITICAL")
		return
	}
	var symptoms []string
	for _, s := range strings.Split(q.Get("symptoms"), ",") {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			symptoms = append(symptoms, s)
		}
	}
	JSON(w, http.StatusOK, map[string]any{
		"urgency":        u,
		"recommendation": u.Recommendation(),
		"is_emergency":   emergency.IsEmergencyCase(u, symptoms),
		"instructions":   emergency.Instructions(u, symptoms),
	})
}

func queryPoint(r *http.Request) (*domain.GeoPoint, error) {
	q := r.URL.Query()
	lat, err := optionalFloat(q.Get("lat"), "lat")
	if err != nil {
		return nil, err
	}
	lon, err := optionalFloat(q.Get("lon"), "lon")
	if err != nil {
		return nil, err
	}
	return geoPoint(lat, lon)
}
