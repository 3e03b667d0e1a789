package repository

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/totegamma/spamguard/internal/infrastructure/database"
	"github.com/totegamma/spamguard/internal/infrastructure/database/models"
)

var baseTime = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

// newTestDB opens a private in-memory database migrated with every model.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, database.Migrate(db))
	return db
}

func seedUser(t *testing.T, db *gorm.DB, id int64, email string, roles ...string) models.User {
	t.Helper()
	u := models.User{
		ID:                 id,
		Username:           fmt.Sprintf("user%d", id),
		Email:              email,
		ReputationModifier: 1,
		CreatedAt:          baseTime.AddDate(0, 0, -30),
		UpdatedAt:          baseTime.AddDate(0, 0, -30),
	}
	require.NoError(t, db.Create(&u).Error)
	for _, r := range roles {
		require.NoError(t, db.Create(&models.UserRole{UserID: id, Name: r}).Error)
	}
	return u
}

func seedArticle(t *testing.T, db *gorm.DB, id, userID int64) {
	t.Helper()
	require.NoError(t, db.Create(&models.Article{
		ID:        id,
		UserID:    userID,
		Title:     fmt.Sprintf("article %d", id),
		Published: true,
		CreatedAt: baseTime.AddDate(0, 0, -20),
	}).Error)
}

func seedComment(t *testing.T, db *gorm.DB, id, userID int64) {
	t.Helper()
	require.NoError(t, db.Create(&models.Comment{
		ID:        id,
		UserID:    userID,
		CreatedAt: baseTime.AddDate(0, 0, -20),
	}).Error)
}

func seedReaction(t *testing.T, db *gorm.DB, userID int64, kind string, reactableID int64, category, status string, at time.Time) {
	t.Helper()
	require.NoError(t, db.Create(&models.Reaction{
		UserID:        userID,
		ReactableID:   reactableID,
		ReactableType: kind,
		Category:      category,
		Status:        status,
		Points:        1,
		CreatedAt:     at,
	}).Error)
}
