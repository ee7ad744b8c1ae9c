package model

import "time"

// Banner placements.
const (
	PlacementHome    = "home"
	PlacementSidebar = "sidebar"
	PlacementPuzzle  = "puzzle"
)

// SponsorBanner is an admin-managed promotional banner shown during its
// active window on a given placement.
type SponsorBanner struct {
	ID        int64      `json:"id"`
	Title     string     `json:"title"`
	ImageURL  string     `json:"image_url"`
	TargetURL string     `json:"target_url"`
	Placement string     `json:"placement"`
	StartsAt  *time.Time `json:"starts_at,omitempty"`
	EndsAt    *time.Time `json:"ends_at,omitempty"`
	Active    bool       `json:"active"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}
