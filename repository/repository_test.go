package repository

import (
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/musable/musable/models"
)

// newTestDB opens an isolated in-memory database with the full schema.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.Song{},
		&models.Room{},
		&models.RoomParticipant{},
		&models.RoomQueueItem{},
		&models.RoomInvite{},
		&models.Device{},
		&models.PlaybackSession{},
	))
	return db
}

func seedUser(t *testing.T, db *gorm.DB, username string) *models.User {
	t.Helper()
	user := models.User{Username: username, Email: username + "@example.com", Password: "secret1"}
	require.NoError(t, db.Create(&user).Error)
	return &user
}

func seedSong(t *testing.T, db *gorm.DB, title string) *models.Song {
	t.Helper()
	song := models.Song{Title: title, Artist: "Test Artist", Duration: 180}
	require.NoError(t, db.Create(&song).Error)
	return &song
}
