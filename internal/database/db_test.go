package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/stomanager/internal/models"
)

func TestOpenSQLiteMemory(t *testing.T) {
	db := openTestDB(t)

	if err := db.Exec("SELECT 1").Error; err != nil {
		t.Fatalf("expected health query to succeed: %v", err)
	}
	if err := Ping(context.Background(), db); err != nil {
		t.Fatalf("expected ping to succeed: %v", err)
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(Config{Driver: "oracle"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "unsupported database driver")
}

func TestAutoMigrateAndSeedData(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, AutoMigrateAndSeed(db))
	// Seeding twice must not duplicate rows.
	require.NoError(t, SeedData(db))

	migrator := db.Migrator()
	for _, table := range []any{
		&models.Account{},
		&models.PendingAccount{},
		&models.OneTimeCode{},
		&models.UploadLog{},
		&models.SOHRecord{},
		&models.FormProgress{},
	} {
		require.True(t, migrator.HasTable(table), "expected table for %T to exist", table)
	}

	// Re-running migrations keeps the partial unique indexes in place.
	require.NoError(t, AutoMigrate(db))
	require.True(t, migrator.HasIndex(&models.OneTimeCode{}, LiveOTPIndex))
	require.True(t, migrator.HasIndex(&models.PendingAccount{}, LivePendingIndex))

	value, err := GetSystemSetting(context.Background(), db, SchemaVersionSetting)
	require.NoError(t, err)
	require.Equal(t, seedVersion, value)

	var count int64
	require.NoError(t, db.Model(&models.SystemSetting{}).Count(&count).Error)
	require.Equal(t, int64(1), count)
}

func TestAccountEmailIsUnique(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, AutoMigrate(db))

	first := models.Account{Email: "dup@example.com", Name: "One", PasswordHash: "x", Role: models.RoleAdminUser, IsActive: true}
	require.NoError(t, db.Create(&first).Error)

	second := models.Account{Email: "dup@example.com", Name: "Two", PasswordHash: "x", Role: models.RoleAdminUser, IsActive: true}
	err := db.Create(&second).Error
	require.ErrorIs(t, err, gorm.ErrDuplicatedKey)
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := Open(Config{Driver: "sqlite"})
	if err != nil {
		t.Fatalf("open database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	return db
}
