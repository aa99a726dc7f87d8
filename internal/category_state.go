package internal

import (
	"github.com/google/uuid"
	"github.com/lychee-technology/facet"
)

// CategoryState is the category side of an item: either no category or
// exactly one.
type CategoryState struct {
	ItemID     uuid.UUID
	CategoryID *uuid.UUID
}

func categoryStateOf(item *facet.Item) CategoryState {
	return CategoryState{ItemID: item.ID, CategoryID: item.CategoryID}
}

// HasCategory reports whether a category is active.
func (s CategoryState) HasCategory() bool {
	return s.CategoryID != nil
}

type transition int

const (
	transitionNone transition = iota
	transitionAssign
	transitionRemove
	transitionReplace
)

func (t transition) String() string {
	switch t {
	case transitionAssign:
		return "assign"
	case transitionRemove:
		return "remove"
	case transitionReplace:
		return "replace"
	default:
		return "none"
	}
}

// planCategoryChange decides how to move from state to target, where a nil
// target means "no category". Holding a different category and not allowing
// replacement is the only rejected move.
func planCategoryChange(state CategoryState, target *uuid.UUID, replace bool) (transition, error) {
	switch {
	case target == nil && !state.HasCategory():
		return transitionNone, nil
	case target == nil:
		return transitionRemove, nil
	case !state.HasCategory():
		return transitionAssign, nil
	case *state.CategoryID == *target:
		return transitionNone, nil
	case !replace:
		return transitionNone, facet.NewCategoryAlreadySetError(state.ItemID, state.CategoryID)
	default:
		return transitionReplace, nil
	}
}
