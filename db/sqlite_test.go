package db

import (
	"path/filepath"
	"testing"
	"time"

	"hummify/models"
)

func newTestClient(t *testing.T) *SQLiteClient {
	t.Helper()
	client, err := NewSQLiteClient(filepath.Join(t.TempDir(), "hummify_test.db"))
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestCreateHumRoundTrip(t *testing.T) {
	client := newTestClient(t)

	hum := &models.Hum{
		UserID:           "user-1",
		Username:         "tester",
		Title:            "shower melody",
		FileSize:         2048,
		AudioFormat:      "wav",
		ProcessingStatus: "completed",
		IsPublic:         true,
		MatchConfidence:  0.87,
		MatchedSong: &models.MatchCandidate{
			Title:      "Some Song",
			Artist:     "Some Artist",
			Album:      "Some Album",
			Confidence: 0.87,
			Source:     "acrcloud_api",
			SpotifyURL: "https://open.spotify.com/track/xyz",
		},
	}

	id, err := client.CreateHum(hum)
	if err != nil {
		t.Fatalf("CreateHum returned error: %v", err)
	}
	if id == "" {
		t.Fatal("CreateHum returned empty id")
	}

	hums, err := client.ListPublicHums(10)
	if err != nil {
		t.Fatalf("ListPublicHums returned error: %v", err)
	}
	if len(hums) != 1 {
		t.Fatalf("got %d hums, want 1", len(hums))
	}

	got := hums[0]
	if got.ID != id || got.Title != "shower melody" || got.UserID != "user-1" {
		t.Fatalf("stored hum does not round-trip: %+v", got)
	}
	if got.MatchedSong == nil {
		t.Fatal("matched song was not persisted")
	}
	if got.MatchedSong.Title != "Some Song" || got.MatchedSong.SpotifyURL != "https://open.spotify.com/track/xyz" {
		t.Fatalf("matched song does not round-trip: %+v", got.MatchedSong)
	}
	if got.CreatedAt.IsZero() {
		t.Fatal("created_at was not set")
	}
}

func TestCreateHumWithoutMatch(t *testing.T) {
	client := newTestClient(t)

	_, err := client.CreateHum(&models.Hum{
		UserID:           "user-1",
		Title:            "unidentified",
		ProcessingStatus: "no_match",
		IsPublic:         true,
	})
	if err != nil {
		t.Fatalf("CreateHum returned error: %v", err)
	}

	hums, err := client.ListPublicHums(10)
	if err != nil {
		t.Fatalf("ListPublicHums returned error: %v", err)
	}
	if hums[0].MatchedSong != nil {
		t.Fatalf("expected nil matched song, got %+v", hums[0].MatchedSong)
	}
}

func TestListPublicHumsFiltersAndOrders(t *testing.T) {
	client := newTestClient(t)

	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	records := []*models.Hum{
		{UserID: "u", Title: "oldest", ProcessingStatus: "completed", IsPublic: true, CreatedAt: base},
		{UserID: "u", Title: "private", ProcessingStatus: "completed", IsPublic: false, CreatedAt: base.Add(time.Hour)},
		{UserID: "u", Title: "newest", ProcessingStatus: "completed", IsPublic: true, CreatedAt: base.Add(2 * time.Hour)},
	}
	for _, r := range records {
		if _, err := client.CreateHum(r); err != nil {
			t.Fatalf("CreateHum(%s) returned error: %v", r.Title, err)
		}
	}

	hums, err := client.ListPublicHums(10)
	if err != nil {
		t.Fatalf("ListPublicHums returned error: %v", err)
	}
	if len(hums) != 2 {
		t.Fatalf("got %d hums, want the 2 public ones", len(hums))
	}
	if hums[0].Title != "newest" || hums[1].Title != "oldest" {
		t.Fatalf("wrong order: %q then %q", hums[0].Title, hums[1].Title)
	}

	limited, err := client.ListPublicHums(1)
	if err != nil {
		t.Fatalf("ListPublicHums(1) returned error: %v", err)
	}
	if len(limited) != 1 || limited[0].Title != "newest" {
		t.Fatalf("limit not applied: %+v", limited)
	}
}

func TestUserStatsLifecycle(t *testing.T) {
	client := newTestClient(t)

	// Unknown users resolve to nil without an error
	profile, err := client.GetUserProfile("nobody")
	if err != nil {
		t.Fatalf("GetUserProfile returned error: %v", err)
	}
	if profile != nil {
		t.Fatalf("expected nil profile for unknown user, got %+v", profile)
	}

	if err := client.CreateOrUpdateUser(models.UserProfile{ID: "u1", Name: "First", Email: "u1@example.com"}); err != nil {
		t.Fatalf("CreateOrUpdateUser returned error: %v", err)
	}
	if err := client.IncrementUserStat("u1", StatTotalHums); err != nil {
		t.Fatalf("IncrementUserStat(totalHums) returned error: %v", err)
	}
	if err := client.IncrementUserStat("u1", StatTotalHums); err != nil {
		t.Fatalf("IncrementUserStat(totalHums) returned error: %v", err)
	}
	if err := client.IncrementUserStat("u1", StatSongsIdentified); err != nil {
		t.Fatalf("IncrementUserStat(songsIdentified) returned error: %v", err)
	}

	profile, err = client.GetUserProfile("u1")
	if err != nil {
		t.Fatalf("GetUserProfile returned error: %v", err)
	}
	if profile == nil {
		t.Fatal("profile missing after upsert")
	}
	if profile.TotalHums != 2 || profile.SongsIdentified != 1 {
		t.Fatalf("counters = %d/%d, want 2/1", profile.TotalHums, profile.SongsIdentified)
	}

	// Upsert updates fields without resetting counters
	if err := client.CreateOrUpdateUser(models.UserProfile{ID: "u1", Name: "Renamed", Email: "new@example.com"}); err != nil {
		t.Fatalf("CreateOrUpdateUser returned error: %v", err)
	}
	profile, err = client.GetUserProfile("u1")
	if err != nil {
		t.Fatalf("GetUserProfile returned error: %v", err)
	}
	if profile.Name != "Renamed" || profile.TotalHums != 2 {
		t.Fatalf("upsert broke profile: %+v", profile)
	}
}

func TestIncrementUserStatRejectsUnknownStat(t *testing.T) {
	client := newTestClient(t)

	if err := client.IncrementUserStat("u1", "likes; DROP TABLE users"); err == nil {
		t.Fatal("expected an error for an unknown stat name")
	}
}

func TestIncrementUserStatCreatesMissingRow(t *testing.T) {
	client := newTestClient(t)

	if err := client.IncrementUserStat("ghost", StatTotalHums); err != nil {
		t.Fatalf("IncrementUserStat returned error: %v", err)
	}
	profile, err := client.GetUserProfile("ghost")
	if err != nil {
		t.Fatalf("GetUserProfile returned error: %v", err)
	}
	if profile == nil || profile.TotalHums != 1 {
		t.Fatalf("counter row not created: %+v", profile)
	}
}
