package internal

import (
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/lychee-technology/facet"
	"github.com/lychee-technology/facet/internal/filter"
)

func sanitizeIdentifier(name string) string {
	if name == "" {
		return ""
	}
	parts := strings.Split(name, ".")
	clean := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.Trim(part, " \"")
		if trimmed == "" {
			continue
		}
		clean = append(clean, trimmed)
	}
	if len(clean) == 0 {
		clean = []string{name}
	}
	return pgx.Identifier(clean).Sanitize()
}

// sqlTables holds the quoted table identifiers used in queries.
type sqlTables struct {
	fields      string
	schemas     string
	collections string
	tags        string
	items       string
	itemTags    string
	fieldValues string
	backups     string
}

func resolveTables(names facet.TableNames) sqlTables {
	return sqlTables{
		fields:      sanitizeIdentifier(names.Fields),
		schemas:     sanitizeIdentifier(names.Schemas),
		collections: sanitizeIdentifier(names.Collections),
		tags:        sanitizeIdentifier(names.Tags),
		items:       sanitizeIdentifier(names.Items),
		itemTags:    sanitizeIdentifier(names.ItemTags),
		fieldValues: sanitizeIdentifier(names.FieldValues),
		backups:     sanitizeIdentifier(names.Backups),
	}
}

func (t sqlTables) filterTables() filter.Tables {
	return filter.Tables{
		Items:       t.items,
		ItemTags:    t.itemTags,
		FieldValues: t.fieldValues,
	}
}
