package database

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/musable/musable/config"
	"github.com/musable/musable/models"
)

var DB *gorm.DB

// Connect establishes a connection to the database
func Connect(cfg *config.Config) {
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
		cfg.DBHost, cfg.DBUser, cfg.DBPass, cfg.DBName, cfg.DBPort)

	var err error
	DB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		logrus.Fatal("Failed to connect to database: ", err)
	}

	logrus.Info("Database connection established")
}

// Migrate automatically migrates the database schema
func Migrate() {
	if err := DB.AutoMigrate(
		&models.User{},
		&models.Song{},
		&models.Room{},
		&models.RoomParticipant{},
		&models.RoomQueueItem{},
		&models.RoomInvite{},
		&models.Device{},
		&models.PlaybackSession{},
	); err != nil {
		logrus.Fatal("Database migration failed: ", err)
	}
	logrus.Info("Database migration completed")
}
