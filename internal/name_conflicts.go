package internal

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/lychee-technology/facet"
)

// findNameConflict reports the first pair of distinct fields across sets that
// share a normalized name. The same field id appearing twice is not a conflict.
func findNameConflict(sets ...[]facet.Field) error {
	seen := make(map[string]facet.Field)
	for _, set := range sets {
		for _, f := range set {
			key := facet.NormalizeName(f.Name)
			if prev, ok := seen[key]; ok {
				if prev.ID != f.ID {
					return facet.NewNameConflictError(f.Name, prev.ID, f.ID)
				}
				continue
			}
			seen[key] = f
		}
	}
	return nil
}

// schemaRoles lists the owner's schemas by the role they play in effective
// field sets, each list in collection or tag order without repeats.
type schemaRoles struct {
	defaults   []uuid.UUID
	categories []uuid.UUID
}

func loadSchemaRoles(ctx context.Context, tx Tx, owner uuid.UUID) (*schemaRoles, error) {
	collections, err := tx.ListCollections(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	tags, err := tx.ListTags(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}

	roles := &schemaRoles{}
	seen := NewSet[uuid.UUID]()
	for _, c := range collections {
		if c.DefaultSchemaID != nil && seen.Add(*c.DefaultSchemaID) {
			roles.defaults = append(roles.defaults, *c.DefaultSchemaID)
		}
	}
	seen = NewSet[uuid.UUID]()
	for _, t := range tags {
		if t.IsCategory && t.SchemaID != nil && seen.Add(*t.SchemaID) {
			roles.categories = append(roles.categories, *t.SchemaID)
		}
	}
	return roles, nil
}

// partnersOf returns every schema that is combined with schemaID in some
// effective field set.
func (r *schemaRoles) partnersOf(schemaID uuid.UUID) []uuid.UUID {
	var partners []uuid.UUID
	seen := NewSetFrom(schemaID)
	if containsID(r.defaults, schemaID) {
		for _, id := range r.categories {
			if seen.Add(id) {
				partners = append(partners, id)
			}
		}
	}
	if containsID(r.categories, schemaID) {
		for _, id := range r.defaults {
			if seen.Add(id) {
				partners = append(partners, id)
			}
		}
	}
	return partners
}

// checkSchemaEdit validates the proposed field list of schemaID on its own and
// against every schema it is paired with.
func checkSchemaEdit(ctx context.Context, tx Tx, owner, schemaID uuid.UUID, proposed []facet.Field) error {
	if err := findNameConflict(proposed); err != nil {
		return err
	}
	roles, err := loadSchemaRoles(ctx, tx, owner)
	if err != nil {
		return err
	}
	return checkAgainst(ctx, tx, proposed, roles.partnersOf(schemaID))
}

// checkPairing validates schemaID in a new role: as a collection default
// it meets every category schema, as a category schema every default.
func checkPairing(ctx context.Context, tx Tx, owner, schemaID uuid.UUID, asDefault bool) error {
	schema, err := loadSchema(ctx, tx, owner, schemaID)
	if err != nil {
		return err
	}
	fields, err := schemaFields(ctx, tx, schema)
	if err != nil {
		return err
	}
	roles, err := loadSchemaRoles(ctx, tx, owner)
	if err != nil {
		return err
	}

	partners := roles.defaults
	if asDefault {
		partners = roles.categories
	}
	return checkAgainst(ctx, tx, fields, without(partners, schemaID))
}

func checkAgainst(ctx context.Context, tx Tx, fields []facet.Field, partners []uuid.UUID) error {
	for _, id := range partners {
		id := id
		other, err := schemaFieldsByID(ctx, tx, &id)
		if err != nil {
			return err
		}
		if err := findNameConflict(fields, other); err != nil {
			return err
		}
	}
	return nil
}

func containsID(ids []uuid.UUID, id uuid.UUID) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}
