package models

import "time"

type HoldRequest struct {
	EventID  string `json:"eventId"`
	SectorID string `json:"sectorId"`
	Quantity int    `json:"quantity"`
}

type HoldResponse struct {
	Reserved   int `json:"reserved"`
	TTLSeconds int `json:"ttlSeconds"`
}

type ReleaseResponse struct {
	Reserved int `json:"reserved"`
}

// HoldSnapshot is the live hold count of every sector of one event.
type HoldSnapshot struct {
	EventID string         `json:"eventId"`
	Sectors map[string]int `json:"sectors"`
	TakenAt time.Time      `json:"takenAt"`
}

// Availability is a point-in-time capacity reading, not a lock.
type Availability struct {
	EventID   string `json:"eventId"`
	SectorID  string `json:"sectorId"`
	Capacity  int    `json:"capacity"`
	Sold      int    `json:"sold"`
	Held      int    `json:"held"`
	Remaining int    `json:"remaining"`
	Open      bool   `json:"open"`
	OK        bool   `json:"ok"`
}

type Occupancy struct {
	EventID string         `json:"eventId"`
	Sectors []Availability `json:"sectors"`
}
