package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Sector is a venue section with a base seat count.
type Sector struct {
	bun.BaseModel `bun:"table:sectors,alias:s"`

	ID        string    `bun:"id,pk" json:"id"`
	Name      string    `bun:"name,notnull" json:"name"`
	Capacity  int       `bun:"capacity,notnull" json:"capacity"`
	CreatedAt time.Time `bun:"created_at,notnull" json:"createdAt"`
}

// Game is a scheduled match. Inventory is always counted per (Game, Sector).
type Game struct {
	bun.BaseModel `bun:"table:games,alias:g"`

	ID        string    `bun:"id,pk" json:"id"`
	Name      string    `bun:"name,notnull" json:"name"`
	Date      time.Time `bun:"date,notnull" json:"date"`
	CreatedAt time.Time `bun:"created_at,notnull" json:"createdAt"`
}

// GameSector binds a sector to a game. A nil Capacity inherits the sector's
// base capacity.
type GameSector struct {
	bun.BaseModel `bun:"table:game_sectors,alias:gs"`

	ID       string `bun:"id,pk" json:"id"`
	GameID   string `bun:"game_id,notnull" json:"gameId"`
	SectorID string `bun:"sector_id,notnull" json:"sectorId"`
	Capacity *int   `bun:"capacity" json:"capacity,omitempty"`
	Open     bool   `bun:"open,notnull" json:"open"`
}

// SectorCapacity is the effective inventory of one (event, sector) pair.
type SectorCapacity struct {
	EventID  string `json:"eventId"`
	SectorID string `json:"sectorId"`
	Capacity int    `json:"capacity"`
	Open     bool   `json:"open"`
}

// EventInfo is the game summary returned to gate operators.
type EventInfo struct {
	ID   string    `json:"id"`
	Name string    `json:"name"`
	Date time.Time `json:"date"`
}

func (g *Game) Info() *EventInfo {
	if g == nil {
		return nil
	}
	return &EventInfo{ID: g.ID, Name: g.Name, Date: g.Date}
}
