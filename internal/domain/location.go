package domain

import (
	"time"

	"github.com/google/uuid"
)

// LocationUpdate точка, которую присылает водитель. Ключ в Kafka - номер машины.
type LocationUpdate struct {
	VehicleNumber string    `json:"vehicle_number"`
	Latitude      float64   `json:"latitude"`
	Longitude     float64   `json:"longitude"`
	SpeedKph      *float64  `json:"speed_kph,omitempty"`
	HeadingDeg    *int      `json:"heading_deg,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// VehicleLocation сохраненная точка трека
type VehicleLocation struct {
	ID         int64     `json:"id"`
	VehicleID  uuid.UUID `json:"vehicle_id"`
	Lat        float64   `json:"lat"`
	Lng        float64   `json:"lng"`
	SpeedKph   *float64  `json:"speed_kph,omitempty"`
	HeadingDeg *int      `json:"heading_deg,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
}
