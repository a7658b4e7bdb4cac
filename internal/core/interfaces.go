package core

import "github.com/dkeye/Dispatch/internal/domain"

// PublishResult reports delivery stats/backpressure to orchestrator.
type PublishResult struct {
	SentTo  int
	Dropped []ConnID
}

// PresenceDTO is a read-only view for APIs (no transport fields).
type PresenceDTO struct {
	UserID domain.UserID `json:"userId"`
	Name   string        `json:"name"`
	Lat    *float64      `json:"lat,omitempty"`
	Lng    *float64      `json:"lng,omitempty"`
}

func NewPresenceDTO(u domain.User, loc *domain.Location) PresenceDTO {
	dto := PresenceDTO{UserID: u.ID, Name: u.Name}
	if loc != nil {
		lat, lng := loc.Lat, loc.Lng
		dto.Lat = &lat
		dto.Lng = &lng
	}
	return dto
}
