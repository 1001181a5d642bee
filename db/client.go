package db

import (
	"fmt"

	"hummify/models"
	"hummify/utils"
)

// Client is the persistence contract the identification endpoint needs:
// create hum records, maintain per-user counters, and list the public feed.
type Client interface {
	Close() error
	CreateHum(hum *models.Hum) (string, error)
	ListPublicHums(limit int) ([]models.Hum, error)
	GetUserProfile(userID string) (*models.UserProfile, error)
	CreateOrUpdateUser(profile models.UserProfile) error
	IncrementUserStat(userID, statName string) error
}

// Counter names accepted by IncrementUserStat.
const (
	StatTotalHums       = "totalHums"
	StatSongsIdentified = "songsIdentified"
)

// NewClient builds the store selected by DB_TYPE: "sqlite" (default) or
// "mongo".
func NewClient() (Client, error) {
	dbType := utils.GetEnv("DB_TYPE", "sqlite")
	switch dbType {
	case "sqlite":
		return NewSQLiteClient(utils.GetEnv("SQLITE_DB_PATH", "db/hummify.db"))
	case "mongo":
		return NewMongoClient(utils.GetEnv("MONGO_URI", "mongodb://localhost:27017"))
	default:
		return nil, fmt.Errorf("unsupported DB_TYPE value: %s", dbType)
	}
}
