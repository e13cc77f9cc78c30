package store

import (
	"encoding/json"
	"time"

	"github.com/yaaruu/bunsane-sub005/internal/ecs"
)

// entityRow is the sqlx scan target for entities rows; ecs.Entity's ID
// field is a named uuid.UUID type with no sql.Scanner, so rows are scanned
// here and converted explicitly.
type entityRow struct {
	ID        string     `db:"id"`
	CreatedAt time.Time  `db:"created_at"`
	UpdatedAt time.Time  `db:"updated_at"`
	DeletedAt *time.Time `db:"deleted_at"`
}

func (r entityRow) toEntity() (ecs.Entity, error) {
	id, err := ecs.ParseEntityID(r.ID)
	if err != nil {
		return ecs.Entity{}, err
	}
	return ecs.Entity{ID: id, CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt, DeletedAt: r.DeletedAt}, nil
}

// componentRow is the sqlx scan target for a components_<name> partition row.
type componentRow struct {
	ID        string     `db:"id"`
	EntityID  string     `db:"entity_id"`
	Name      string     `db:"name"`
	Data      []byte     `db:"data"`
	CreatedAt time.Time  `db:"created_at"`
	UpdatedAt time.Time  `db:"updated_at"`
	DeletedAt *time.Time `db:"deleted_at"`
}

func decodeComponentData(raw []byte) (ecs.ComponentData, error) {
	var data ecs.ComponentData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, err
	}
	return data, nil
}
