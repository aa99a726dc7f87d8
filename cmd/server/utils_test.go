package main

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/lychee-technology/facet"
	"github.com/stretchr/testify/assert"
)

func TestStatusForError(t *testing.T) {
	itemID := uuid.New()
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "not found", err: facet.NewNotFoundError("item", itemID), want: http.StatusNotFound},
		{name: "no backup", err: facet.NewNoBackupFoundError(itemID, uuid.New()), want: http.StatusNotFound},
		{name: "name conflict", err: facet.NewTagNameConflictError("Reading", true), want: http.StatusConflict},
		{name: "category already set", err: facet.NewCategoryAlreadySetError(itemID, nil), want: http.StatusConflict},
		{name: "concurrent modification", err: facet.NewConcurrentModificationError(itemID), want: http.StatusConflict},
		{name: "invalid config", err: facet.NewInvalidConfigError("name", "required"), want: http.StatusBadRequest},
		{name: "category not active", err: facet.NewCategoryNotActiveError(itemID, uuid.New()), want: http.StatusUnprocessableEntity},
		{name: "wrapped", err: fmt.Errorf("handler: %w", facet.NewNotFoundError("field", itemID)), want: http.StatusNotFound},
		{name: "foreign", err: errors.New("boom"), want: http.StatusInternalServerError},
		{name: "internal", err: facet.NewInternalError("boom", nil), want: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, statusForError(tt.err))
		})
	}
}

func TestOwnerFrom(t *testing.T) {
	owner := uuid.New()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/fields", nil)
	req.Header.Set(ownerHeader, owner.String())
	got, err := ownerFrom(req)
	assert.NoError(t, err)
	assert.Equal(t, owner, got)

	req.Header.Set(ownerHeader, "abc")
	_, err = ownerFrom(req)
	assert.ErrorContains(t, err, "invalid X-Owner-ID")

	req.Header.Del(ownerHeader)
	_, err = ownerFrom(req)
	assert.ErrorContains(t, err, "missing X-Owner-ID")
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("DB_PORT", "6543")
	t.Setenv("ITEMS_TABLE", "app.items")
	t.Setenv("FILTER_PUSHDOWN", "true")
	t.Setenv("FILTER_MAX_CRITERIA", "not-a-number")
	t.Setenv("BACKUP_RETENTION_HOURS", "48")

	config := loadConfig()

	assert.Equal(t, "db.internal", config.Database.Host)
	assert.Equal(t, 6543, config.Database.Port)
	assert.Equal(t, "app.items", config.Database.TableNames.Items)
	assert.Equal(t, "item_tags", config.Database.TableNames.ItemTags)
	assert.True(t, config.Filter.EnablePushdown)
	assert.Equal(t, facet.DefaultConfig().Filter.MaxCriteria, config.Filter.MaxCriteria)
	assert.Equal(t, "48h0m0s", config.Backup.Retention.String())
	assert.NoError(t, config.Validate())
}
