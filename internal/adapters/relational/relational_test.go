package relational_test

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragforge/rag-mcp/internal/adapters/relational"
	"github.com/ragforge/rag-mcp/internal/apperrors"
	"github.com/ragforge/rag-mcp/internal/models"
	"github.com/ragforge/rag-mcp/internal/reqcontext"
)

func newMockStore(t *testing.T) (*relational.Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return relational.New(sqlx.NewDb(db, "postgres")), mock
}

func TestGetTenant_Found(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()

	rows := sqlmock.NewRows([]string{"tenant_id", "display_name", "domain", "tier", "created_at", "updated_at", "deleted_at"}).
		AddRow("tenant-a", "Tenant A", nil, "premium", now, now, nil)
	mock.ExpectQuery(`SELECT tenant_id, display_name, domain, tier, created_at, updated_at, deleted_at FROM tenants WHERE tenant_id = \$1`).
		WithArgs("tenant-a").
		WillReturnRows(rows)

	tenant, err := store.GetTenant(context.Background(), "tenant-a")

	require.NoError(t, err)
	assert.Equal(t, "tenant-a", tenant.TenantID)
	assert.Equal(t, models.TierPremium, tenant.Tier)
	assert.False(t, tenant.SoftDeleted())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetTenant_QueryErrorIsReturned(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT tenant_id, display_name, domain, tier, created_at, updated_at, deleted_at FROM tenants WHERE tenant_id = \$1`).
		WithArgs("tenant-ghost").
		WillReturnError(sqlmock.ErrCancelled)

	_, err := store.GetTenant(context.Background(), "tenant-ghost")
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetDocument_EnforcesTenantIsolation(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectExec(`SELECT set_config\('app.current_tenant_id', \$1, true\)`).WithArgs("tenant-a").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`SELECT set_config\('app.current_role', \$1, true\)`).WithArgs("end_user").WillReturnResult(sqlmock.NewResult(0, 0))

	rows := sqlmock.NewRows([]string{"document_id", "tenant_id", "owner_user_id", "title", "content_hash", "version_number", "created_at", "updated_at", "deleted_at"}).
		AddRow("doc-1", "tenant-a", "user-1", "Doc One", "hash", 1, now, now, nil)
	mock.ExpectQuery(`SELECT document_id, tenant_id, owner_user_id, title, content_hash, version_number, created_at, updated_at, deleted_at FROM documents WHERE document_id = \$1 AND tenant_id = \$2 AND deleted_at IS NULL`).
		WithArgs("doc-1", "tenant-a").
		WillReturnRows(rows)
	mock.ExpectCommit()

	rc := reqcontext.RequestContext{TenantID: "tenant-a", Role: reqcontext.RoleEndUser}
	doc, err := store.GetDocument(context.Background(), rc, "doc-1")

	require.NoError(t, err)
	assert.Equal(t, "tenant-a", doc.TenantID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetDocument_QueryErrorRollsBack(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`SELECT set_config\('app.current_tenant_id', \$1, true\)`).WithArgs("tenant-a").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`SELECT set_config\('app.current_role', \$1, true\)`).WithArgs("end_user").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT document_id, tenant_id, owner_user_id, title, content_hash, version_number, created_at, updated_at, deleted_at FROM documents WHERE document_id = \$1 AND tenant_id = \$2 AND deleted_at IS NULL`).
		WithArgs("doc-missing", "tenant-a").
		WillReturnError(sqlmock.ErrCancelled)
	mock.ExpectRollback()

	rc := reqcontext.RequestContext{TenantID: "tenant-a", Role: reqcontext.RoleEndUser}
	_, err := store.GetDocument(context.Background(), rc, "doc-missing")

	require.Error(t, err)
	appErr, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.KindTransient, appErr.Kind)
	require.NoError(t, mock.ExpectationsWereMet())
}
