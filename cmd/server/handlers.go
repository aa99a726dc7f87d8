package main

import (
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/lychee-technology/facet"
	"github.com/lychee-technology/facet/internal"
)

type createSchemaBody struct {
	Name     string      `json:"name"`
	FieldIDs []uuid.UUID `json:"fieldIds"`
}

type schemaFieldsBody struct {
	FieldIDs []uuid.UUID `json:"fieldIds"`
}

type createCollectionBody struct {
	Name            string     `json:"name"`
	DefaultSchemaID *uuid.UUID `json:"defaultSchemaId"`
}

type defaultSchemaBody struct {
	SchemaID *uuid.UUID `json:"schemaId"`
}

type createItemBody struct {
	CollectionID uuid.UUID `json:"collectionId"`
}

// setCategoryBody accepts either a single categoryId (remove when null) or a
// categoryIds list. A single categoryId replaces the current category unless
// replace is explicitly false, in which case a different category already on
// the item is a conflict.
type setCategoryBody struct {
	CategoryID      *uuid.UUID  `json:"categoryId"`
	CategoryIDs     []uuid.UUID `json:"categoryIds"`
	Replace         *bool       `json:"replace"`
	ExpectedVersion *int64      `json:"expectedVersion"`
}

func (b setCategoryBody) replace() bool {
	return b.Replace == nil || *b.Replace
}

type restoreResponse struct {
	Restored int `json:"restored"`
}

// handleCreateField handles POST /api/v1/fields
func (s *Server) handleCreateField(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}

	var req facet.CreateFieldRequest
	if err := readJSONBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid json body: %v", err))
		return
	}

	field, err := s.manager.CreateField(r.Context(), owner, &req)
	if err != nil {
		writeManagerError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusCreated, field)
}

// handleListFields handles GET /api/v1/fields
func (s *Server) handleListFields(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}
	fields, err := s.manager.ListFields(r.Context(), owner)
	if err != nil {
		writeManagerError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, fields)
}

// handleGetField handles GET /api/v1/fields/{id}
func (s *Server) handleGetField(w http.ResponseWriter, r *http.Request) {
	owner, id, ok := requireOwnerAndID(w, r, "id")
	if !ok {
		return
	}
	field, err := s.manager.GetField(r.Context(), owner, id)
	if err != nil {
		writeManagerError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, field)
}

// handleDeleteField handles DELETE /api/v1/fields/{id}
func (s *Server) handleDeleteField(w http.ResponseWriter, r *http.Request) {
	owner, id, ok := requireOwnerAndID(w, r, "id")
	if !ok {
		return
	}
	if err := s.manager.DeleteField(r.Context(), owner, id); err != nil {
		writeManagerError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleCreateSchema handles POST /api/v1/schemas
func (s *Server) handleCreateSchema(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}

	var body createSchemaBody
	if err := readJSONBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid json body: %v", err))
		return
	}

	schema, err := s.manager.CreateSchema(r.Context(), owner, body.Name, body.FieldIDs)
	if err != nil {
		writeManagerError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusCreated, schema)
}

// handleGetSchema handles GET /api/v1/schemas/{id}
func (s *Server) handleGetSchema(w http.ResponseWriter, r *http.Request) {
	owner, id, ok := requireOwnerAndID(w, r, "id")
	if !ok {
		return
	}
	schema, err := s.manager.GetSchema(r.Context(), owner, id)
	if err != nil {
		writeManagerError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, schema)
}

// handleSetSchemaFields handles PUT /api/v1/schemas/{id}/fields
func (s *Server) handleSetSchemaFields(w http.ResponseWriter, r *http.Request) {
	owner, id, ok := requireOwnerAndID(w, r, "id")
	if !ok {
		return
	}

	var body schemaFieldsBody
	if err := readJSONBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid json body: %v", err))
		return
	}

	schema, err := s.manager.SetSchemaFields(r.Context(), owner, id, body.FieldIDs)
	if err != nil {
		writeManagerError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, schema)
}

// handleCreateCollection handles POST /api/v1/collections
func (s *Server) handleCreateCollection(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}

	var body createCollectionBody
	if err := readJSONBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid json body: %v", err))
		return
	}

	collection, err := s.manager.CreateCollection(r.Context(), owner, body.Name, body.DefaultSchemaID)
	if err != nil {
		writeManagerError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusCreated, collection)
}

// handleSetDefaultSchema handles PUT /api/v1/collections/{id}/default-schema
func (s *Server) handleSetDefaultSchema(w http.ResponseWriter, r *http.Request) {
	owner, id, ok := requireOwnerAndID(w, r, "id")
	if !ok {
		return
	}

	var body defaultSchemaBody
	if err := readJSONBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid json body: %v", err))
		return
	}

	collection, err := s.manager.SetCollectionDefaultSchema(r.Context(), owner, id, body.SchemaID)
	if err != nil {
		writeManagerError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, collection)
}

// handleCreateTag handles POST /api/v1/tags
func (s *Server) handleCreateTag(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}

	var req facet.CreateTagRequest
	if err := readJSONBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid json body: %v", err))
		return
	}

	tag, err := s.manager.CreateTag(r.Context(), owner, &req)
	if err != nil {
		writeManagerError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusCreated, tag)
}

// handleDeleteTag handles DELETE /api/v1/tags/{id}
func (s *Server) handleDeleteTag(w http.ResponseWriter, r *http.Request) {
	owner, id, ok := requireOwnerAndID(w, r, "id")
	if !ok {
		return
	}
	if err := s.manager.DeleteTag(r.Context(), owner, id); err != nil {
		writeManagerError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleCreateItem handles POST /api/v1/items
func (s *Server) handleCreateItem(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}

	var body createItemBody
	if err := readJSONBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid json body: %v", err))
		return
	}

	item, err := s.manager.CreateItem(r.Context(), owner, body.CollectionID)
	if err != nil {
		writeManagerError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusCreated, item)
}

// handleSetCategory handles PUT /api/v1/items/{id}/category
// The request sets the item's category: an existing one is backed up and
// replaced, and a null categoryId removes it.
func (s *Server) handleSetCategory(w http.ResponseWriter, r *http.Request) {
	owner, itemID, ok := requireOwnerAndID(w, r, "id")
	if !ok {
		return
	}

	var body setCategoryBody
	if err := readJSONBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid json body: %v", err))
		return
	}

	var (
		result *facet.CategoryChangeResult
		err    error
	)
	switch {
	case body.CategoryIDs != nil:
		result, err = s.manager.SetItemCategory(r.Context(), owner, itemID, &facet.SetCategoryRequest{
			CategoryIDs:     body.CategoryIDs,
			ExpectedVersion: body.ExpectedVersion,
		})
	case body.CategoryID != nil:
		result, err = s.manager.AssignCategory(r.Context(), owner, itemID, *body.CategoryID, facet.AssignOptions{
			Replace:         body.replace(),
			ExpectedVersion: body.ExpectedVersion,
		})
	default:
		result, err = s.manager.RemoveCategory(r.Context(), owner, itemID, body.ExpectedVersion)
	}
	if err != nil {
		writeManagerError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, result)
}

// handleEffectiveFields handles GET /api/v1/items/{id}/fields
func (s *Server) handleEffectiveFields(w http.ResponseWriter, r *http.Request) {
	owner, itemID, ok := requireOwnerAndID(w, r, "id")
	if !ok {
		return
	}
	fields, err := s.manager.GetEffectiveFields(r.Context(), owner, itemID)
	if err != nil {
		writeManagerError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, fields)
}

// handleGetValues handles GET /api/v1/items/{id}/values
func (s *Server) handleGetValues(w http.ResponseWriter, r *http.Request) {
	owner, itemID, ok := requireOwnerAndID(w, r, "id")
	if !ok {
		return
	}
	values, err := s.manager.GetFieldValues(r.Context(), owner, itemID)
	if err != nil {
		writeManagerError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, values)
}

// handleSetValues handles PUT /api/v1/items/{id}/values. The body maps field
// names to values; null clears a value.
func (s *Server) handleSetValues(w http.ResponseWriter, r *http.Request) {
	owner, itemID, ok := requireOwnerAndID(w, r, "id")
	if !ok {
		return
	}

	var values map[string]any
	if err := readJSONBody(r, &values); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid json body: %v", err))
		return
	}

	written, err := s.manager.SetFieldValues(r.Context(), owner, itemID, values)
	if err != nil {
		writeManagerError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, written)
}

// handleFilterItems handles POST /api/v1/items/filter
func (s *Server) handleFilterItems(w http.ResponseWriter, r *http.Request) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return
	}

	var req facet.FilterRequest
	if err := readJSONBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid json body: %v", err))
		return
	}

	result, err := s.manager.FilterItems(r.Context(), owner, &req)
	if err != nil {
		writeManagerError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, result)
}

// handleListBackups handles GET /api/v1/items/{id}/backups
func (s *Server) handleListBackups(w http.ResponseWriter, r *http.Request) {
	owner, itemID, ok := requireOwnerAndID(w, r, "id")
	if !ok {
		return
	}
	backups, err := s.manager.ListBackups(r.Context(), owner, itemID)
	if err != nil {
		writeManagerError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, backups)
}

// handleRestore handles POST /api/v1/items/{id}/category/{categoryId}/restore
func (s *Server) handleRestore(w http.ResponseWriter, r *http.Request) {
	owner, itemID, ok := requireOwnerAndID(w, r, "id")
	if !ok {
		return
	}
	categoryID, err := pathUUID(r, "categoryId")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	restored, err := s.manager.Restore(r.Context(), owner, itemID, categoryID)
	if err != nil {
		writeManagerError(w, r, err)
		return
	}
	writeSuccess(w, http.StatusOK, restoreResponse{Restored: restored})
}

// handleHealth handles GET /healthz
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.pool != nil {
		if err := internal.CheckFieldStore(r.Context(), s.pool, s.tables, 0); err != nil {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
	}
	writeSuccess(w, http.StatusOK, map[string]string{"status": "ok"})
}

func requireOwner(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	owner, err := ownerFrom(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return uuid.Nil, false
	}
	return owner, true
}

func requireOwnerAndID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, uuid.UUID, bool) {
	owner, ok := requireOwner(w, r)
	if !ok {
		return uuid.Nil, uuid.Nil, false
	}
	id, err := pathUUID(r, name)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return uuid.Nil, uuid.Nil, false
	}
	return owner, id, true
}
