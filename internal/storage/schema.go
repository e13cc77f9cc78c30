package storage

import (
	"context"
	"fmt"
	"regexp"

	"github.com/yaaruu/bunsane-sub005/internal/apperrors"
	"github.com/yaaruu/bunsane-sub005/internal/config"
)

// identifierPattern constrains component names accepted as SQL identifiers
// for partition naming, guarding against injection through registered
// component names.
var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Bootstrap creates the base tables (entities, components, entity_components)
// on first start. components is partitioned by name using the configured
// strategy; safe to call repeatedly (IF NOT EXISTS throughout).
func (d *Driver) Bootstrap(ctx context.Context, strategy config.PartitionStrategy) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS entities (
			id UUID PRIMARY KEY,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			deleted_at TIMESTAMPTZ
		)`,
	}

	switch strategy {
	case config.PartitionHash:
		statements = append(statements, `CREATE TABLE IF NOT EXISTS components (
			id UUID NOT NULL,
			entity_id UUID NOT NULL REFERENCES entities(id),
			name TEXT NOT NULL,
			data JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			deleted_at TIMESTAMPTZ,
			PRIMARY KEY (id, name)
		) PARTITION BY HASH (name)`)
	default:
		statements = append(statements, `CREATE TABLE IF NOT EXISTS components (
			id UUID NOT NULL,
			entity_id UUID NOT NULL REFERENCES entities(id),
			name TEXT NOT NULL,
			data JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			deleted_at TIMESTAMPTZ,
			PRIMARY KEY (id, name)
		) PARTITION BY LIST (name)`)
	}

	statements = append(statements,
		`CREATE TABLE IF NOT EXISTS entity_components (
			entity_id UUID NOT NULL REFERENCES entities(id),
			component_name TEXT NOT NULL,
			component_id UUID NOT NULL,
			UNIQUE (entity_id, component_name)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_entity_components_entity ON entity_components(entity_id)`,
	)

	for _, stmt := range statements {
		if _, err := d.Exec(ctx, stmt); err != nil {
			return apperrors.Storage("bootstrap", err)
		}
	}
	return nil
}

// EnsurePartition creates the physical partition backing componentName if
// it does not already exist. Invoked at component registration, before the
// registry is sealed.
func (d *Driver) EnsurePartition(ctx context.Context, componentName string, strategy config.PartitionStrategy) error {
	if !identifierPattern.MatchString(componentName) {
		return apperrors.Validation(fmt.Sprintf("invalid component name for partitioning: %q", componentName))
	}

	partition := "components_" + componentName

	var stmt string
	switch strategy {
	case config.PartitionHash:
		modulus, remainder := hashBucket(componentName, 16)
		stmt = fmt.Sprintf(
			`CREATE TABLE IF NOT EXISTS %s PARTITION OF components FOR VALUES WITH (MODULUS %d, REMAINDER %d)`,
			quoteIdent(partition), modulus, remainder,
		)
	default:
		stmt = fmt.Sprintf(
			`CREATE TABLE IF NOT EXISTS %s PARTITION OF components FOR VALUES IN (%s)`,
			quoteIdent(partition), quoteLiteral(componentName),
		)
	}

	if _, err := d.Exec(ctx, stmt); err != nil {
		return apperrors.Storage("ensure_partition", err)
	}

	idxStmt := fmt.Sprintf(
		`CREATE INDEX IF NOT EXISTS %s ON %s USING GIN (data)`,
		quoteIdent("idx_"+partition+"_data"), quoteIdent(partition),
	)
	if _, err := d.Exec(ctx, idxStmt); err != nil {
		return apperrors.Storage("ensure_partition_index", err)
	}
	return nil
}

// hashBucket deterministically maps a component name into one of n
// modulus buckets for PARTITION BY HASH, used only to pick a stable
// REMAINDER value; Postgres recomputes the actual hash internally.
func hashBucket(name string, n int) (modulus, remainder int) {
	var h uint32 = 2166136261
	for i := 0; i < len(name); i++ {
		h ^= uint32(name[i])
		h *= 16777619
	}
	return n, int(h % uint32(n))
}

func quoteIdent(s string) string {
	return `"` + s + `"`
}

func quoteLiteral(s string) string {
	return `'` + s + `'`
}
