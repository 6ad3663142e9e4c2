package db

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"

	"ms-club-ticketing/internal/models"
)

// schemaModels lists every table in creation order.
var schemaModels = []interface{}{
	(*models.Sector)(nil),
	(*models.Game)(nil),
	(*models.GameSector)(nil),
	(*models.Order)(nil),
	(*models.OrderLine)(nil),
	(*models.Ticket)(nil),
	(*models.Checkin)(nil),
	(*models.Payment)(nil),
}

// CreateSchema creates the tables straight from the bun models. Production
// uses the SQL migrations; this serves in-memory test databases.
func CreateSchema(ctx context.Context, db bun.IDB) error {
	for _, m := range schemaModels {
		if _, err := db.NewCreateTable().Model(m).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("create table for %T: %w", m, err)
		}
	}
	return nil
}
