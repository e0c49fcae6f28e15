package platform

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupPlatformTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, NewRepository(db).AutoMigrate())
	return db
}

func TestResolveTargets(t *testing.T) {
	ctx := context.Background()
	db := setupPlatformTestDB(t)
	repo := NewRepository(db)

	base := time.Now().Add(-time.Hour)
	shop := &Platform{UserID: "u1", PlatformType: TypeShopify, Name: "Main", Status: StatusConnected, IsActive: true, CreatedAt: base}
	woo := &Platform{UserID: "u1", PlatformType: TypeWooCommerce, Status: StatusConnected, IsActive: true, CreatedAt: base.Add(time.Minute)}
	broken := &Platform{UserID: "u1", PlatformType: TypeEtsy, Status: StatusError, IsActive: true, CreatedAt: base.Add(2 * time.Minute)}
	other := &Platform{UserID: "u2", PlatformType: TypeShopify, Status: StatusConnected, IsActive: true}
	disabled := &Platform{UserID: "u1", PlatformType: TypeFaire, Status: StatusConnected, IsActive: true, CreatedAt: base.Add(3 * time.Minute)}
	for _, p := range []*Platform{shop, woo, broken, other, disabled} {
		require.NoError(t, db.Create(p).Error)
	}
	require.NoError(t, db.Model(disabled).Update("is_active", false).Error)

	all, err := repo.ResolveTargets(ctx, "u1", nil)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, shop.ID, all[0].ID)
	assert.Equal(t, woo.ID, all[1].ID)

	byType, err := repo.ResolveTargets(ctx, "u1", []string{"woocommerce"})
	require.NoError(t, err)
	require.Len(t, byType, 1)
	assert.Equal(t, woo.ID, byType[0].ID)

	byID, err := repo.ResolveTargets(ctx, "u1", []string{shop.ID, "shopify"})
	require.NoError(t, err)
	require.Len(t, byID, 1)

	none, err := repo.ResolveTargets(ctx, "u1", []string{"etsy", other.ID})
	require.NoError(t, err)
	assert.Empty(t, none)
}
