package services

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/marketplacekit/ghl-adapter/internal/models"
)

func testInstallation(tenantID string) *models.Installation {
	return &models.Installation{
		TenantID:     tenantID,
		TenantScope:  models.ScopeCompany,
		AccessToken:  "access-" + tenantID,
		RefreshToken: "refresh-" + tenantID,
		TokenType:    models.TokenTypeBearer,
		IssuedAt:     time.Now(),
		ExpiresIn:    86400,
		Scopes:       "contacts.readonly contacts.write",
	}
}

func setupGormRegistry(t *testing.T) InstallationRegistry {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Installation{}))
	return NewGormRegistry(db)
}

// registryBackends runs each contract test against both implementations.
func registryBackends(t *testing.T) map[string]InstallationRegistry {
	return map[string]InstallationRegistry{
		"memory": NewMemoryRegistry(),
		"gorm":   setupGormRegistry(t),
	}
}

func TestRegistryPutGetRoundTrip(t *testing.T) {
	for name, registry := range registryBackends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, registry.Put(testInstallation("co_1")))

			record, err := registry.Get("co_1")
			require.NoError(t, err)
			require.NotNil(t, record)
			assert.Equal(t, "co_1", record.TenantID)
			assert.Equal(t, "access-co_1", record.AccessToken)
			assert.Equal(t, models.ScopeCompany, record.TenantScope)
		})
	}
}

func TestRegistryGetAbsentTenant(t *testing.T) {
	for name, registry := range registryBackends(t) {
		t.Run(name, func(t *testing.T) {
			record, err := registry.Get("never-installed")
			assert.NoError(t, err)
			assert.Nil(t, record)
			assert.False(t, registry.Exists("never-installed"))
		})
	}
}

func TestRegistryPutOverwritesExisting(t *testing.T) {
	for name, registry := range registryBackends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, registry.Put(testInstallation("co_1")))

			updated := testInstallation("co_1")
			updated.AccessToken = "rotated-access"
			updated.RefreshToken = "rotated-refresh"
			require.NoError(t, registry.Put(updated))

			record, err := registry.Get("co_1")
			require.NoError(t, err)
			require.NotNil(t, record)
			assert.Equal(t, "rotated-access", record.AccessToken)
			assert.Equal(t, "rotated-refresh", record.RefreshToken)
			assert.Len(t, registry.AllTenantIDs(), 1)
		})
	}
}

func TestRegistryDelete(t *testing.T) {
	for name, registry := range registryBackends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, registry.Put(testInstallation("co_1")))
			require.True(t, registry.Exists("co_1"))

			require.NoError(t, registry.Delete("co_1"))
			assert.False(t, registry.Exists("co_1"))

			// Deleting an absent tenant is not an error.
			assert.NoError(t, registry.Delete("co_1"))
		})
	}
}

func TestRegistryAllTenantIDs(t *testing.T) {
	for name, registry := range registryBackends(t) {
		t.Run(name, func(t *testing.T) {
			for _, id := range []string{"co_1", "loc_9", "co_2"} {
				require.NoError(t, registry.Put(testInstallation(id)))
			}
			assert.ElementsMatch(t, []string{"co_1", "loc_9", "co_2"}, registry.AllTenantIDs())
		})
	}
}

func TestMemoryRegistryCopiesRecords(t *testing.T) {
	registry := NewMemoryRegistry()
	original := testInstallation("co_1")
	require.NoError(t, registry.Put(original))

	// Mutating the caller's struct after Put must not affect stored state.
	original.AccessToken = "mutated"

	record, err := registry.Get("co_1")
	require.NoError(t, err)
	assert.Equal(t, "access-co_1", record.AccessToken)

	// Same for mutating what Get handed out.
	record.AccessToken = "mutated-again"
	again, err := registry.Get("co_1")
	require.NoError(t, err)
	assert.Equal(t, "access-co_1", again.AccessToken)
}

func TestMemoryRegistryConcurrentWrites(t *testing.T) {
	registry := NewMemoryRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tenantID := fmt.Sprintf("co_%d", i%10)
			_ = registry.Put(testInstallation(tenantID))
			_, _ = registry.Get(tenantID)
			_ = registry.Exists(tenantID)
		}(i)
	}
	wg.Wait()

	assert.Len(t, registry.AllTenantIDs(), 10)
}
