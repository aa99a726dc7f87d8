package internal

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lychee-technology/facet"
	"github.com/lychee-technology/facet/internal/filter"
	"go.uber.org/zap"
)

const (
	filterPathMemory   = "memory"
	filterPathPushdown = "pushdown"
)

// FilterItems returns the items of a collection that satisfy every criterion
// and carry at least one of the requested tags. A field value only counts when
// the field is effective for the item; otherwise the field is treated as
// missing.
func (m *fieldManager) FilterItems(ctx context.Context, owner uuid.UUID, req *facet.FilterRequest) (*facet.FilterResult, error) {
	if req == nil {
		return nil, facet.NewInvalidConfigError("request", "request cannot be nil")
	}
	if len(req.Criteria) > m.config.Filter.MaxCriteria {
		return nil, facet.NewInvalidConfigError("criteria",
			fmt.Sprintf("at most %d criteria are allowed, got %d", m.config.Filter.MaxCriteria, len(req.Criteria)))
	}

	start := time.Now()
	result := &facet.FilterResult{}
	err := m.read(ctx, "filter items", func(tx Tx) error {
		collection, err := loadCollection(ctx, tx, owner, req.CollectionID)
		if err != nil {
			return err
		}
		predicate, err := compileCriteria(ctx, tx, owner, req.Criteria)
		if err != nil {
			return err
		}
		for _, tagID := range req.TagIDs {
			if _, err := loadTag(ctx, tx, owner, tagID); err != nil {
				return err
			}
		}

		scope, err := filterScope(ctx, tx, owner, collection, predicate.FieldIDs(), req.TagIDs)
		if err != nil {
			return err
		}

		if m.config.Filter.EnablePushdown {
			if filterer, ok := tx.(ItemFilterer); ok {
				ids, err := filterer.FilterItemIDs(ctx, predicate, scope)
				if err != nil {
					return fmt.Errorf("filter pushdown: %w", err)
				}
				result.ItemIDs = ids
				result.Pushdown = true
				return nil
			}
			zap.S().Debugw("filter pushdown unavailable, evaluating in memory", "collectionID", collection.ID)
		}

		result.ItemIDs, err = m.filterInMemory(ctx, tx, predicate, scope)
		return err
	})
	if err != nil {
		return nil, err
	}

	if result.ItemIDs == nil {
		result.ItemIDs = []uuid.UUID{}
	}
	result.Total = len(result.ItemIDs)
	result.ExecutionTime = time.Since(start)

	path := filterPathMemory
	if result.Pushdown {
		path = filterPathPushdown
	}
	EmitFilterLatency(ctx, path, result.ExecutionTime.Milliseconds())
	EmitFilterMatches(ctx, path, result.Total)
	zap.S().Debugw("filtered items", "collectionID", req.CollectionID, "criteria", len(req.Criteria),
		"tags", len(req.TagIDs), "matches", result.Total, "path", path, "duration", result.ExecutionTime)
	return result, nil
}

func compileCriteria(ctx context.Context, tx Tx, owner uuid.UUID, criteria []facet.Criterion) (*filter.Predicate, error) {
	ids := make([]uuid.UUID, 0, len(criteria))
	for _, c := range criteria {
		ids = append(ids, c.FieldID)
	}

	fields := map[uuid.UUID]facet.Field{}
	if len(ids) > 0 {
		found, err := tx.GetFieldsByIDs(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("get criteria fields: %w", err)
		}
		for id, f := range found {
			if f.OwnerID == owner {
				fields[id] = f
			}
		}
	}
	return filter.Compile(fields, criteria)
}

// filterScope works out, for every criteria field, on which items of the
// collection it is effective.
func filterScope(ctx context.Context, tx Tx, owner uuid.UUID, collection *facet.Collection, fieldIDs, tagIDs []uuid.UUID) (filter.Scope, error) {
	scope := filter.Scope{
		CollectionID: collection.ID,
		TagIDs:       tagIDs,
		Reach:        make(map[uuid.UUID]filter.Reach, len(fieldIDs)),
	}
	if len(fieldIDs) == 0 {
		return scope, nil
	}

	var defaults *facet.Schema
	if collection.DefaultSchemaID != nil {
		var err error
		defaults, err = tx.GetSchema(ctx, *collection.DefaultSchemaID)
		if err != nil {
			return scope, fmt.Errorf("get default schema: %w", err)
		}
	}

	schemas, err := tx.ListSchemas(ctx, owner)
	if err != nil {
		return scope, fmt.Errorf("list schemas: %w", err)
	}
	schemaByID := make(map[uuid.UUID]facet.Schema, len(schemas))
	for _, s := range schemas {
		schemaByID[s.ID] = s
	}
	tags, err := tx.ListTags(ctx, owner)
	if err != nil {
		return scope, fmt.Errorf("list tags: %w", err)
	}

	for _, fieldID := range fieldIDs {
		if defaults != nil && defaults.Contains(fieldID) {
			scope.Reach[fieldID] = filter.Reach{Always: true}
			continue
		}
		var reach filter.Reach
		for _, t := range tags {
			if !t.IsCategory || t.SchemaID == nil {
				continue
			}
			if s, ok := schemaByID[*t.SchemaID]; ok && s.Contains(fieldID) {
				reach.CategoryIDs = append(reach.CategoryIDs, t.ID)
			}
		}
		scope.Reach[fieldID] = reach
	}
	return scope, nil
}

func (m *fieldManager) filterInMemory(ctx context.Context, tx Tx, predicate *filter.Predicate, scope filter.Scope) ([]uuid.UUID, error) {
	items, err := tx.ListCollectionItems(ctx, scope.CollectionID)
	if err != nil {
		return nil, fmt.Errorf("list collection items: %w", err)
	}
	if len(items) == 0 {
		return nil, nil
	}

	candidates := make([]filter.Candidate, len(items))
	index := make(map[uuid.UUID]int, len(items))
	itemIDs := make([]uuid.UUID, len(items))
	for i := range items {
		item := &items[i]
		tagIDs := append([]uuid.UUID{}, item.LabelIDs...)
		if item.CategoryID != nil {
			tagIDs = append(tagIDs, *item.CategoryID)
		}
		candidates[i] = filter.Candidate{ItemID: item.ID, TagIDs: tagIDs, Values: map[uuid.UUID]facet.FieldValue{}}
		index[item.ID] = i
		itemIDs[i] = item.ID
	}

	if fieldIDs := predicate.FieldIDs(); len(fieldIDs) > 0 {
		values, err := tx.ListFieldValues(ctx, itemIDs, fieldIDs)
		if err != nil {
			return nil, fmt.Errorf("list field values: %w", err)
		}
		for _, v := range values {
			i, ok := index[v.ItemID]
			if !ok || !scope.Reachable(v.FieldID, items[i].CategoryID) {
				continue
			}
			candidates[i].Values[v.FieldID] = v
		}
	}

	matched, err := m.evaluator.Evaluate(ctx, predicate, scope.TagIDs, candidates)
	if err != nil {
		return nil, err
	}
	return filter.Select(candidates, matched), nil
}
