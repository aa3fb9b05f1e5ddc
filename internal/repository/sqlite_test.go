package repository

import (
	"context"
	"testing"

	"github.com/atinyakov/GalleryKeeper/internal/db"
	"github.com/atinyakov/GalleryKeeper/internal/models"
	"github.com/atinyakov/GalleryKeeper/internal/storage"
)

func TestSQLRecordRepository_SQLiteRoundTrip(t *testing.T) {
	conn, err := db.InitSQLite(t.TempDir())
	if err != nil {
		t.Fatalf("InitSQLite: %v", err)
	}
	defer conn.Close()
	ctx := context.Background()

	store := storage.New(NewSQLRecordRepository(conn, DialectSQLite))
	if err := store.SetCollection(ctx, models.Collection{ID: "c1", Slug: "wedding", AllowDownloads: true}); err != nil {
		t.Fatal(err)
	}
	if err := store.SetPhoto(ctx, models.Photo{ID: "p1", CollectionID: "c1"}); err != nil {
		t.Fatal(err)
	}
	if err := store.SetShare(ctx, models.ShareLink{ID: "s1", AccessToken: "tok", CollectionID: "c1"}); err != nil {
		t.Fatal(err)
	}
	if _, err := store.UpdateFavorites(ctx, "tok", "a", "p1", models.FavoriteAdd, nil); err != nil {
		t.Fatal(err)
	}
	if err := store.DeleteShare(ctx, "s1"); err != nil {
		t.Fatal(err)
	}

	reloaded := storage.New(NewSQLRecordRepository(conn, DialectSQLite))
	c, err := reloaded.Collection(ctx, "c1")
	if err != nil {
		t.Fatalf("Collection: %v", err)
	}
	if c.PhotoCount != 1 || !c.AllowDownloads {
		t.Errorf("collection = %+v", c)
	}
	if len(reloaded.Shares(ctx)) != 0 {
		t.Error("deleted share came back")
	}
	if got := reloaded.FavoriteAnalytics(ctx)["p1"].TotalFavorites; got != 1 {
		t.Errorf("favorites = %d; want 1", got)
	}
}
