package data

import (
	"strings"
)

// Capability tags a System may declare in its features list.
const (
	FeatureRecording     = "recording"
	FeatureBooking       = "booking"
	FeatureAV            = "av"
	FeatureLighting      = "lighting"
	FeatureHVAC          = "hvac"
	FeatureCameraControl = "camera_control"
	FeaturePTZ           = "ptz"
	FeatureSignage       = "signage"
	FeatureAccessControl = "access_control"
	FeatureOccupancy     = "occupancy"
	FeatureBruinCast     = "bruincast"
)

// System is a bookable space in the building-management platform.
type System struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	DisplayName string   `json:"display_name,omitempty"`
	Description string   `json:"description,omitempty"`
	Email       string   `json:"email,omitempty"`
	Capacity    int      `json:"capacity,omitempty"`
	Features    []string `json:"features,omitempty"`
	Bookable    bool     `json:"bookable,omitempty"`
	Public      bool     `json:"public,omitempty"`
	SupportURL  string   `json:"support_url,omitempty"`
	Timezone    string   `json:"timezone,omitempty"`
	Modules     []string `json:"modules,omitempty"`
	Zones       []string `json:"zones,omitempty"`
	Images      []string `json:"images,omitempty"`
	UpdatedAt   int64    `json:"updated_at,omitempty"`
	Version     int      `json:"version,omitempty"`
}

// HasFeature reports whether the system declares the capability tag (case-insensitive).
func (s *System) HasFeature(tag string) bool {
	for _, f := range s.Features {
		if strings.EqualFold(f, tag) {
			return true
		}
	}
	return false
}

// SystemPage is one page of a systems query.
type SystemPage struct {
	Data  []System `json:"data"`
	Total int      `json:"total"`
}

// SystemQuery filters a systems listing.
type SystemQuery struct {
	Features string
	Limit    int
	Offset   int
}
