package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// Channel identifies a data source (one car/logger) on the server.
type Channel struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	TrackName string    `json:"trackName"`
	CreatedAt time.Time `json:"createdAt"`
}
