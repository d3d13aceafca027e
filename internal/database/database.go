package database

import (
	"fmt"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"hivox/internal/models"
)

var DB *gorm.DB

// Connect establishes a connection to the database. driver is "postgres" or "sqlite".
func Connect(driver, dsn string) error {
	var dialector gorm.Dialector
	switch driver {
	case "postgres":
		dialector = postgres.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(dsn)
	default:
		return fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := gorm.Open(dialector, Options())
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	DB = db

	zap.L().Info("Database connection established", zap.String("driver", driver))
	return nil
}

// Options returns the gorm settings shared by the server and the tests
func Options() *gorm.Config {
	return &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Error),
		DisableForeignKeyConstraintWhenMigrating: true,
		TranslateError:                           true,
	}
}

// Models lists every table owned by the service, in migration order
func Models() []interface{} {
	return []interface{}{
		&models.User{},
		&models.Referral{},
		&models.Activity{},
		&models.ClaimHistory{},
		&models.RewardEvent{},
		&models.ReferralCredit{},
		&models.TweetTask{},
	}
}

// AutoMigrate runs automatic migrations for all models
func AutoMigrate(db *gorm.DB) error {
	for _, model := range Models() {
		if err := db.AutoMigrate(model); err != nil {
			return fmt.Errorf("migration failed for %T: %w", model, err)
		}
	}

	zap.L().Info("Database migrations completed")
	return nil
}

// GetDB returns the database instance
func GetDB() *gorm.DB {
	return DB
}
