package users

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/ohya-backend/pkg/db"
	"github.com/angelmondragon/ohya-backend/pkg/db/dbtest"
	"github.com/angelmondragon/ohya-backend/pkg/enums"
)

func TestRepositoryLifecycle(t *testing.T) {
	ctx := context.Background()
	client := dbtest.Open(t)
	repo := NewRepository(client.DB())

	exists, err := repo.AdminExists(ctx)
	require.NoError(t, err)
	assert.False(t, exists)

	user, err := repo.Create(ctx, CreateUserDTO{Email: "  Ana@Example.COM ", PasswordHash: "h1", Name: " Ana "})
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", user.Email)
	assert.Equal(t, "Ana", user.Name)

	found, err := repo.FindByEmail(ctx, "ANA@example.com")
	require.NoError(t, err)
	assert.Equal(t, user.ID, found.ID)

	require.NoError(t, repo.UpdatePasswordHash(ctx, user.ID, "h2"))
	found, err = repo.FindByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "h2", found.PasswordHash)

	_, err = repo.Create(ctx, CreateUserDTO{Email: "ana@example.com", PasswordHash: "h", Name: "Dup"})
	assert.True(t, db.IsUniqueViolation(err, ""), "got %v", err)

	_, err = repo.FindByID(ctx, 999)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	_, err = repo.Create(ctx, CreateUserDTO{Email: "root@example.com", PasswordHash: "h", Name: "Root", IsAdmin: true})
	require.NoError(t, err)
	exists, err = repo.AdminExists(ctx)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestFromModelMapsRole(t *testing.T) {
	client := dbtest.Open(t)
	admin := dbtest.SeedUser(t, client, "root@example.com", true)

	dto := FromModel(&admin)
	assert.Equal(t, enums.RoleAdmin, dto.Role)
	assert.Nil(t, FromModel(nil))
}
