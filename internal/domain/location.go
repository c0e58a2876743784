package domain

// GeoPoint is a caller-supplied position.
type GeoPoint struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// VetLocation is one nearby-care record returned by the lookup collaborator.
type VetLocation struct {
	Name              string  `json:"name"`
	Address           string  `json:"address"`
	Phone             string  `json:"phone"`
	Latitude          float64 `json:"latitude"`
	Longitude         float64 `json:"longitude"`
	DistanceKm        float64 `json:"distance_km"`
	IsEmergencyClinic bool    `json:"is_emergency_clinic"`
	Hours             string  `json:"hours"`
	Rating            float64 `json:"rating"`
}
