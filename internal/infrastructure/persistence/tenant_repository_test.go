package persistence

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/storelink/backend/internal/domain/identity"
	"github.com/storelink/backend/internal/domain/shared"
	"github.com/storelink/backend/internal/infrastructure/crypto"
	"github.com/storelink/backend/internal/infrastructure/persistence/models"
)

func setupTenantTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	err = db.AutoMigrate(&models.TenantModel{})
	require.NoError(t, err)

	return db
}

func newTestTenantRepo(t *testing.T, db *gorm.DB) *GormTenantRepository {
	cipher, err := crypto.NewTokenCipher(strings.Repeat("ab", 32))
	require.NoError(t, err)
	return NewGormTenantRepository(db, cipher)
}

func newTestTenant(t *testing.T, domain string) *identity.Tenant {
	tenant, err := identity.NewTenant(domain, 12345, uuid.New(), "shpat_secret_token")
	require.NoError(t, err)
	return tenant
}

func TestTenantRepository_CreateAndFind(t *testing.T) {
	db := setupTenantTestDB(t)
	repo := newTestTenantRepo(t, db)
	ctx := context.Background()

	t.Run("round-trips a tenant with the plaintext token", func(t *testing.T) {
		tenant := newTestTenant(t, "acme.mystorelink.com")
		require.NoError(t, repo.Create(ctx, tenant))

		found, err := repo.FindByID(ctx, tenant.ID)
		require.NoError(t, err)
		assert.Equal(t, tenant.ID, found.ID)
		assert.Equal(t, "acme.mystorelink.com", found.ShopDomain)
		assert.Equal(t, "shpat_secret_token", found.AccessToken)
		assert.Equal(t, identity.InstallStatusActive, found.Status)
	})

	t.Run("stores the token encrypted, never plaintext", func(t *testing.T) {
		tenant := newTestTenant(t, "cipher-check.mystorelink.com")
		require.NoError(t, repo.Create(ctx, tenant))

		var model models.TenantModel
		require.NoError(t, db.First(&model, "id = ?", tenant.ID).Error)
		assert.NotEqual(t, "shpat_secret_token", model.AccessToken)
		assert.NotContains(t, model.AccessToken, "shpat_secret_token")
	})

	t.Run("returns ErrNotFound for unknown id", func(t *testing.T) {
		_, err := repo.FindByID(ctx, uuid.New())
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})
}

func TestTenantRepository_FindActiveByDomain(t *testing.T) {
	db := setupTenantTestDB(t)
	repo := newTestTenantRepo(t, db)
	ctx := context.Background()

	t.Run("finds the active tenant case-insensitively", func(t *testing.T) {
		tenant := newTestTenant(t, "widgets.mystorelink.com")
		require.NoError(t, repo.Create(ctx, tenant))

		found, err := repo.FindActiveByDomain(ctx, "WIDGETS.mystorelink.com")
		require.NoError(t, err)
		assert.Equal(t, tenant.ID, found.ID)
	})

	t.Run("skips uninstalled rows for the same domain", func(t *testing.T) {
		old := newTestTenant(t, "reinstall.mystorelink.com")
		require.NoError(t, repo.Create(ctx, old))
		ok, err := repo.Deactivate(ctx, old.ID)
		require.NoError(t, err)
		require.True(t, ok)

		fresh := newTestTenant(t, "reinstall.mystorelink.com")
		require.NoError(t, repo.Create(ctx, fresh))

		found, err := repo.FindActiveByDomain(ctx, "reinstall.mystorelink.com")
		require.NoError(t, err)
		assert.Equal(t, fresh.ID, found.ID)
	})

	t.Run("returns ErrNotFound for empty domain", func(t *testing.T) {
		_, err := repo.FindActiveByDomain(ctx, "")
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})
}

func TestTenantRepository_Deactivate(t *testing.T) {
	db := setupTenantTestDB(t)
	repo := newTestTenantRepo(t, db)
	ctx := context.Background()

	tenant := newTestTenant(t, "goodbye.mystorelink.com")
	require.NoError(t, tenant.SetCharge("charge_99"))
	require.NoError(t, repo.Create(ctx, tenant))

	ok, err := repo.Deactivate(ctx, tenant.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	found, err := repo.FindByID(ctx, tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, identity.InstallStatusUninstalled, found.Status)
	assert.Empty(t, found.AccessToken)
	assert.Empty(t, found.ChargeID)

	// A replayed uninstall webhook hits an already-uninstalled row.
	ok, err = repo.Deactivate(ctx, tenant.ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTenantRepository_SetCharge(t *testing.T) {
	db := setupTenantTestDB(t)
	repo := newTestTenantRepo(t, db)
	ctx := context.Background()

	t.Run("stamps the charge on an active tenant", func(t *testing.T) {
		tenant := newTestTenant(t, "charge.mystorelink.com")
		require.NoError(t, repo.Create(ctx, tenant))

		ok, err := repo.SetCharge(ctx, tenant.ID, "rac_42")
		require.NoError(t, err)
		assert.True(t, ok)

		found, err := repo.FindByID(ctx, tenant.ID)
		require.NoError(t, err)
		assert.Equal(t, "rac_42", found.ChargeID)
		assert.Equal(t, "shpat_secret_token", found.AccessToken)
	})

	t.Run("an uninstall racing a stale activation stays terminal", func(t *testing.T) {
		tenant := newTestTenant(t, "race.mystorelink.com")
		require.NoError(t, repo.Create(ctx, tenant))

		// Loaded before the uninstall lands, as a webhook handler would.
		stale, err := repo.FindByID(ctx, tenant.ID)
		require.NoError(t, err)
		require.True(t, stale.IsActive())

		ok, err := repo.Deactivate(ctx, tenant.ID)
		require.NoError(t, err)
		require.True(t, ok)

		ok, err = repo.SetCharge(ctx, stale.ID, "rac_zombie")
		require.NoError(t, err)
		assert.False(t, ok)

		found, err := repo.FindByID(ctx, tenant.ID)
		require.NoError(t, err)
		assert.Equal(t, identity.InstallStatusUninstalled, found.Status)
		assert.Empty(t, found.AccessToken)
		assert.Empty(t, found.ChargeID)
	})
}

func TestTenantRepository_RotateToken(t *testing.T) {
	db := setupTenantTestDB(t)
	repo := newTestTenantRepo(t, db)
	ctx := context.Background()

	t.Run("replaces the token for an active tenant", func(t *testing.T) {
		tenant := newTestTenant(t, "rotate.mystorelink.com")
		require.NoError(t, repo.Create(ctx, tenant))

		ok, err := repo.RotateToken(ctx, tenant.ID, "shpat_new_token")
		require.NoError(t, err)
		assert.True(t, ok)

		found, err := repo.FindByID(ctx, tenant.ID)
		require.NoError(t, err)
		assert.Equal(t, "shpat_new_token", found.AccessToken)
	})

	t.Run("refuses to give an uninstalled tenant a token", func(t *testing.T) {
		tenant := newTestTenant(t, "dead.mystorelink.com")
		require.NoError(t, repo.Create(ctx, tenant))
		_, err := repo.Deactivate(ctx, tenant.ID)
		require.NoError(t, err)

		ok, err := repo.RotateToken(ctx, tenant.ID, "shpat_zombie")
		require.NoError(t, err)
		assert.False(t, ok)

		found, err := repo.FindByID(ctx, tenant.ID)
		require.NoError(t, err)
		assert.Empty(t, found.AccessToken)
	})
}

func TestTenantRepository_FindByOwner(t *testing.T) {
	db := setupTenantTestDB(t)
	repo := newTestTenantRepo(t, db)
	ctx := context.Background()

	ownerID := uuid.New()
	for _, domain := range []string{"one.mystorelink.com", "two.mystorelink.com"} {
		tenant, err := identity.NewTenant(domain, 1, ownerID, "shpat_x")
		require.NoError(t, err)
		require.NoError(t, repo.Create(ctx, tenant))
	}
	other := newTestTenant(t, "other.mystorelink.com")
	require.NoError(t, repo.Create(ctx, other))

	tenants, err := repo.FindByOwner(ctx, ownerID)
	require.NoError(t, err)
	assert.Len(t, tenants, 2)
}

func TestTenantRepository_HardDelete(t *testing.T) {
	db := setupTenantTestDB(t)
	repo := newTestTenantRepo(t, db)
	ctx := context.Background()

	tenant := newTestTenant(t, "redact.mystorelink.com")
	require.NoError(t, repo.Create(ctx, tenant))

	require.NoError(t, repo.HardDelete(ctx, tenant.ID))

	_, err := repo.FindByID(ctx, tenant.ID)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}
