package e2e_harness

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/lychee-technology/facet"
)

// Library is a small reading-list setup: a collection whose default schema
// carries a Notes field, and a Book category adding Rating and Format.
type Library struct {
	Owner      uuid.UUID
	Collection *facet.Collection
	Notes      *facet.Field
	Rating     *facet.Field
	Format     *facet.Field
	Finished   *facet.Field
	Book       *facet.Tag
	Article    *facet.Tag
	Favorite   *facet.Tag
	Items      []*facet.Item
}

// SeedLibrary creates the Library fixture with n items, none categorized.
func SeedLibrary(ctx context.Context, m facet.FieldManager, n int) (*Library, error) {
	lib := &Library{Owner: uuid.New()}
	owner := lib.Owner

	var err error
	if lib.Notes, err = m.CreateField(ctx, owner, &facet.CreateFieldRequest{Name: "Notes", Type: facet.FieldTypeText}); err != nil {
		return nil, fmt.Errorf("create notes: %w", err)
	}
	if lib.Rating, err = m.CreateField(ctx, owner, &facet.CreateFieldRequest{
		Name: "Rating", Type: facet.FieldTypeRating,
		Config: facet.FieldConfig{Rating: &facet.RatingConfig{Max: 5}},
	}); err != nil {
		return nil, fmt.Errorf("create rating: %w", err)
	}
	if lib.Format, err = m.CreateField(ctx, owner, &facet.CreateFieldRequest{
		Name: "Format", Type: facet.FieldTypeSelect,
		Config: facet.FieldConfig{Select: &facet.SelectConfig{Options: []string{"paper", "ebook", "audio"}}},
	}); err != nil {
		return nil, fmt.Errorf("create format: %w", err)
	}
	if lib.Finished, err = m.CreateField(ctx, owner, &facet.CreateFieldRequest{Name: "Finished", Type: facet.FieldTypeBoolean}); err != nil {
		return nil, fmt.Errorf("create finished: %w", err)
	}

	base, err := m.CreateSchema(ctx, owner, "Base", []uuid.UUID{lib.Notes.ID})
	if err != nil {
		return nil, fmt.Errorf("create base schema: %w", err)
	}
	books, err := m.CreateSchema(ctx, owner, "Books", []uuid.UUID{lib.Rating.ID, lib.Format.ID})
	if err != nil {
		return nil, fmt.Errorf("create book schema: %w", err)
	}
	articles, err := m.CreateSchema(ctx, owner, "Articles", []uuid.UUID{lib.Finished.ID})
	if err != nil {
		return nil, fmt.Errorf("create article schema: %w", err)
	}

	if lib.Collection, err = m.CreateCollection(ctx, owner, "Reading list", &base.ID); err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}
	if lib.Book, err = m.CreateTag(ctx, owner, &facet.CreateTagRequest{Name: "Book", IsCategory: true, SchemaID: &books.ID}); err != nil {
		return nil, fmt.Errorf("create book category: %w", err)
	}
	if lib.Article, err = m.CreateTag(ctx, owner, &facet.CreateTagRequest{Name: "Article", IsCategory: true, SchemaID: &articles.ID}); err != nil {
		return nil, fmt.Errorf("create article category: %w", err)
	}
	if lib.Favorite, err = m.CreateTag(ctx, owner, &facet.CreateTagRequest{Name: "Favorite"}); err != nil {
		return nil, fmt.Errorf("create favorite label: %w", err)
	}

	for i := 0; i < n; i++ {
		item, err := m.CreateItem(ctx, owner, lib.Collection.ID)
		if err != nil {
			return nil, fmt.Errorf("create item %d: %w", i, err)
		}
		lib.Items = append(lib.Items, item)
	}
	return lib, nil
}
