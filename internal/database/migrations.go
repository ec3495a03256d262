package database

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/charlesng35/stomanager/internal/models"
)

// SchemaVersionSetting records the seed revision applied to this database.
const SchemaVersionSetting = "schema.seed_version"

const seedVersion = "1"

// Partial unique indexes: at most one live code per (email, purpose) and at most one
// unapproved signup per email.
const (
	LiveOTPIndex     = "ux_otp_codes_live"
	LivePendingIndex = "ux_pending_users_live_email"
)

type liveIndex struct {
	name  string
	model any
	table string
	// columns and predicate build the partial index on postgres and sqlite.
	columns, predicate string
	// expression is the MySQL functional key; NULL keys never collide.
	expression string
}

var liveIndexes = []liveIndex{
	{
		name:       LiveOTPIndex,
		model:      &models.OneTimeCode{},
		table:      "otp_codes",
		columns:    "email, purpose",
		predicate:  "used = %s",
		expression: "(CASE WHEN used = 0 THEN CONCAT(email, '|', purpose) END)",
	},
	{
		name:       LivePendingIndex,
		model:      &models.PendingAccount{},
		table:      "pending_users",
		columns:    "email",
		predicate:  "admin_approved = %s",
		expression: "(CASE WHEN admin_approved = 0 THEN email END)",
	},
}

// AutoMigrate creates or updates the database schema for all models.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.Account{},
		&models.PendingAccount{},
		&models.OneTimeCode{},
		&models.Session{},
		&models.AuditLog{},
		&models.UploadLog{},
		&models.SOHRecord{},
		&models.FormProgress{},
		&models.CacheEntry{},
		&models.SystemSetting{},
	); err != nil {
		return err
	}
	return ensureLiveIndexes(db)
}

func ensureLiveIndexes(db *gorm.DB) error {
	dialect := db.Dialector.Name()
	for _, idx := range liveIndexes {
		var stmt string
		switch dialect {
		case "mysql":
			if db.Migrator().HasIndex(idx.model, idx.name) {
				continue
			}
			stmt = fmt.Sprintf("CREATE UNIQUE INDEX %s ON %s (%s)", idx.name, idx.table, idx.expression)
		case "postgres":
			stmt = fmt.Sprintf("CREATE UNIQUE INDEX IF NOT EXISTS %s ON %s (%s) WHERE %s",
				idx.name, idx.table, idx.columns, fmt.Sprintf(idx.predicate, "false"))
		default:
			stmt = fmt.Sprintf("CREATE UNIQUE INDEX IF NOT EXISTS %s ON %s (%s) WHERE %s",
				idx.name, idx.table, idx.columns, fmt.Sprintf(idx.predicate, "0"))
		}
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("create index %s: %w", idx.name, err)
		}
	}
	return nil
}

// SeedData records the seed revision. Accounts are never seeded here; the default
// administrator is created explicitly through the setup service.
func SeedData(db *gorm.DB) error {
	setting := models.SystemSetting{Key: SchemaVersionSetting, Value: seedVersion}
	return db.Where(models.SystemSetting{Key: SchemaVersionSetting}).
		Attrs(setting).
		FirstOrCreate(&models.SystemSetting{}).Error
}
