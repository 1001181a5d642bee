package db

import (
	"context"
	"fmt"
	"time"

	"hummify/models"
	"hummify/utils"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const mongoOpTimeout = 10 * time.Second

type MongoClient struct {
	client *mongo.Client
	db     *mongo.Database
}

func NewMongoClient(uri string) (*MongoClient, error) {
	ctx, cancel := context.WithTimeout(context.Background(), mongoOpTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("error connecting to MongoDB: %s", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("error pinging MongoDB: %s", err)
	}

	dbName := utils.GetEnv("MONGO_DB_NAME", "hummify")
	return &MongoClient{client: client, db: client.Database(dbName)}, nil
}

func (m *MongoClient) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), mongoOpTimeout)
	defer cancel()
	return m.client.Disconnect(ctx)
}

type mongoHum struct {
	ID               string                 `bson:"_id"`
	UserID           string                 `bson:"userId"`
	Username         string                 `bson:"username"`
	Title            string                 `bson:"title"`
	FileSize         int64                  `bson:"fileSize"`
	AudioFormat      string                 `bson:"audioFormat"`
	ProcessingStatus string                 `bson:"processingStatus"`
	IsPublic         bool                   `bson:"isPublic"`
	Likes            int                    `bson:"likes"`
	CommentsCount    int                    `bson:"commentsCount"`
	MatchedSong      *models.MatchCandidate `bson:"matchedSong,omitempty"`
	MatchConfidence  float64                `bson:"matchConfidence"`
	CreatedAt        time.Time              `bson:"createdAt"`
}

func (m *MongoClient) CreateHum(hum *models.Hum) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), mongoOpTimeout)
	defer cancel()

	if hum.ID == "" {
		hum.ID = utils.GenerateUniqueID()
	}
	if hum.CreatedAt.IsZero() {
		hum.CreatedAt = time.Now().UTC()
	}

	doc := mongoHum{
		ID:               hum.ID,
		UserID:           hum.UserID,
		Username:         hum.Username,
		Title:            hum.Title,
		FileSize:         hum.FileSize,
		AudioFormat:      hum.AudioFormat,
		ProcessingStatus: hum.ProcessingStatus,
		IsPublic:         hum.IsPublic,
		Likes:            hum.Likes,
		CommentsCount:    hum.CommentsCount,
		MatchedSong:      hum.MatchedSong,
		MatchConfidence:  hum.MatchConfidence,
		CreatedAt:        hum.CreatedAt,
	}

	if _, err := m.db.Collection("hums").InsertOne(ctx, doc); err != nil {
		return "", fmt.Errorf("error inserting hum: %s", err)
	}
	return hum.ID, nil
}

func (m *MongoClient) ListPublicHums(limit int) ([]models.Hum, error) {
	ctx, cancel := context.WithTimeout(context.Background(), mongoOpTimeout)
	defer cancel()

	if limit <= 0 {
		limit = 50
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetLimit(int64(limit))
	cursor, err := m.db.Collection("hums").Find(ctx, bson.M{"isPublic": true}, opts)
	if err != nil {
		return nil, fmt.Errorf("error querying hums: %s", err)
	}
	defer cursor.Close(ctx)

	var docs []mongoHum
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("error decoding hums: %s", err)
	}

	hums := make([]models.Hum, 0, len(docs))
	for _, d := range docs {
		hums = append(hums, models.Hum{
			ID:               d.ID,
			UserID:           d.UserID,
			Username:         d.Username,
			Title:            d.Title,
			FileSize:         d.FileSize,
			AudioFormat:      d.AudioFormat,
			ProcessingStatus: d.ProcessingStatus,
			IsPublic:         d.IsPublic,
			Likes:            d.Likes,
			CommentsCount:    d.CommentsCount,
			MatchedSong:      d.MatchedSong,
			MatchConfidence:  d.MatchConfidence,
			CreatedAt:        d.CreatedAt,
		})
	}
	return hums, nil
}

func (m *MongoClient) GetUserProfile(userID string) (*models.UserProfile, error) {
	ctx, cancel := context.WithTimeout(context.Background(), mongoOpTimeout)
	defer cancel()

	var doc struct {
		ID              string `bson:"_id"`
		Name            string `bson:"name"`
		Email           string `bson:"email"`
		TotalHums       int    `bson:"totalHums"`
		SongsIdentified int    `bson:"songsIdentified"`
	}
	err := m.db.Collection("users").FindOne(ctx, bson.M{"_id": userID}).Decode(&doc)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, fmt.Errorf("error retrieving user profile: %s", err)
	}

	return &models.UserProfile{
		ID:              doc.ID,
		Name:            doc.Name,
		Email:           doc.Email,
		TotalHums:       doc.TotalHums,
		SongsIdentified: doc.SongsIdentified,
	}, nil
}

func (m *MongoClient) CreateOrUpdateUser(profile models.UserProfile) error {
	ctx, cancel := context.WithTimeout(context.Background(), mongoOpTimeout)
	defer cancel()

	update := bson.M{"$set": bson.M{"name": profile.Name, "email": profile.Email}}
	opts := options.Update().SetUpsert(true)
	if _, err := m.db.Collection("users").UpdateByID(ctx, profile.ID, update, opts); err != nil {
		return fmt.Errorf("error upserting user: %s", err)
	}
	return nil
}

func (m *MongoClient) IncrementUserStat(userID, statName string) error {
	if _, ok := statColumns[statName]; !ok {
		return fmt.Errorf("unknown user stat: %s", statName)
	}

	ctx, cancel := context.WithTimeout(context.Background(), mongoOpTimeout)
	defer cancel()

	update := bson.M{"$inc": bson.M{statName: 1}}
	opts := options.Update().SetUpsert(true)
	if _, err := m.db.Collection("users").UpdateByID(ctx, userID, update, opts); err != nil {
		return fmt.Errorf("error incrementing %s: %s", statName, err)
	}
	return nil
}
