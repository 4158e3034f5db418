package db

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vikasavnish/savepad/internal/config"
	"github.com/vikasavnish/savepad/internal/models"
)

func memoryConfig() config.DatabaseConfig {
	return config.DatabaseConfig{
		Driver: "sqlite",
		Path:   "file:" + uuid.NewString() + "?mode=memory&cache=shared",
	}
}

func TestConnectMigratesSchema(t *testing.T) {
	database, err := Connect(memoryConfig())
	require.NoError(t, err)

	for _, table := range []string{"users", "plans", "family_members"} {
		assert.True(t, database.Migrator().HasTable(table), "table %s", table)
	}
	assert.True(t, database.Migrator().HasIndex(&models.FamilyMember{}, "idx_family_owner_member"))
}

func TestFamilyMemberUniquePerOwnerAndMember(t *testing.T) {
	database, err := Connect(memoryConfig())
	require.NoError(t, err)

	owner := models.User{Name: "Owner", Status: models.UserStatusActive}
	member := models.User{Name: "Member", Status: models.UserStatusActive}
	require.NoError(t, database.Create(&owner).Error)
	require.NoError(t, database.Create(&member).Error)

	first := models.FamilyMember{OwnerID: owner.ID, MemberID: &member.ID, Name: "Member"}
	require.NoError(t, database.Create(&first).Error)

	dup := models.FamilyMember{OwnerID: owner.ID, MemberID: &member.ID, Name: "Member again"}
	assert.Error(t, database.Create(&dup).Error)

	// pending invites carry no member id and never collide
	require.NoError(t, database.Create(&models.FamilyMember{OwnerID: owner.ID, Name: "A", WhatsappNumber: "5511911111111"}).Error)
	require.NoError(t, database.Create(&models.FamilyMember{OwnerID: owner.ID, Name: "B", WhatsappNumber: "5511922222222"}).Error)
}

func TestConnectRejectsUnknownDriver(t *testing.T) {
	_, err := Connect(config.DatabaseConfig{Driver: "oracle"})
	assert.Error(t, err)
}
