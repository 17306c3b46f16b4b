package database

import (
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"weblog/common"
	"weblog/fulltext"
	"weblog/models"
)

func RunMigrations(db *gorm.DB, dialect fulltext.Dialect) error {
	common.Log.WithField("dialect", dialect.Name()).Info("running database migrations")

	err := db.AutoMigrate(
		&models.User{},
		&models.Tag{},
		&models.Series{},
		&models.Post{},
		&models.Link{},
		&models.Quotation{},
	)
	if err != nil {
		common.Log.WithError(err).Error("error running migrations")
		return errors.Wrap(err, "auto migrate")
	}

	if err := dialect.Migrate(db, models.Tables()); err != nil {
		common.Log.WithError(err).Error("error migrating search columns")
		return err
	}

	common.Log.Info("migrations completed successfully")
	return nil
}
