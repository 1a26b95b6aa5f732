/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package concerts

import (
	"context"
	"errors"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestStore(t *testing.T) (*Store, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "concerts.db")), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(Models()...); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return NewStore(db, zerolog.Nop()), db
}

func seedConcert(t *testing.T, db *gorm.DB, name string, start time.Time, songs ...Song) Concert {
	t.Helper()
	artist := Artist{Name: name + " band"}
	if err := db.Create(&artist).Error; err != nil {
		t.Fatal(err)
	}
	c := Concert{ArtistID: artist.ID, Name: name, StartTime: start, Songs: songs}
	if err := db.Create(&c).Error; err != nil {
		t.Fatal(err)
	}
	return c
}

func TestPlaylistOrder(t *testing.T) {
	store, db := newTestStore(t)
	c := seedConcert(t, db, "Night One", time.Now().Add(time.Hour),
		Song{Position: 2, Name: "Closer", FilePath: "closer.flac"},
		Song{Position: 0, Name: "Opener", FilePath: "opener.flac"},
		Song{Position: 1, Name: "Middle", FilePath: "s3://media/middle.flac"},
	)

	got, err := store.Playlist(context.Background(), c.ID)
	if err != nil {
		t.Fatalf("Playlist: %v", err)
	}
	want := []string{"opener.flac", "s3://media/middle.flac", "closer.flac"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("playlist = %v, want %v", got, want)
	}
}

func TestGetUnknownConcert(t *testing.T) {
	store, _ := newTestStore(t)

	if _, err := store.Get(context.Background(), 404); !errors.Is(err, ErrConcertNotFound) {
		t.Fatalf("Get = %v, want ErrConcertNotFound", err)
	}
	if _, err := store.Playlist(context.Background(), 404); !errors.Is(err, ErrConcertNotFound) {
		t.Fatalf("Playlist = %v, want ErrConcertNotFound", err)
	}
	if _, err := store.StartTime(context.Background(), 404); !errors.Is(err, ErrConcertNotFound) {
		t.Fatalf("StartTime = %v, want ErrConcertNotFound", err)
	}
}

func TestUpcoming(t *testing.T) {
	store, db := newTestStore(t)
	now := time.Now().UTC().Truncate(time.Second)

	seedConcert(t, db, "Last Week", now.Add(-7*24*time.Hour))
	later := seedConcert(t, db, "Later", now.Add(48*time.Hour))
	soon := seedConcert(t, db, "Soon", now.Add(time.Hour))

	list, err := store.Upcoming(context.Background(), now)
	if err != nil {
		t.Fatalf("Upcoming: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("got %d concerts, want 2", len(list))
	}
	if list[0].ID != soon.ID || list[1].ID != later.ID {
		t.Fatalf("order = %d,%d, want %d,%d", list[0].ID, list[1].ID, soon.ID, later.ID)
	}

	start, err := store.StartTime(context.Background(), soon.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !start.Equal(soon.StartTime) {
		t.Fatalf("StartTime = %v, want %v", start, soon.StartTime)
	}
}

func TestExportICal(t *testing.T) {
	store, db := newTestStore(t)
	start := time.Date(2026, 11, 20, 20, 0, 0, 0, time.UTC)
	c := seedConcert(t, db, "Live, Loud; Late", start)

	export, err := store.ExportICal(context.Background(), start.Add(-time.Hour), start.Add(time.Hour))
	if err != nil {
		t.Fatalf("ExportICal: %v", err)
	}

	body := string(export.Data)
	for _, want := range []string{
		"BEGIN:VCALENDAR\r\n",
		"UID:concert-" + strconv.FormatInt(c.ID, 10) + "@encore\r\n",
		"DTSTART:20261120T200000Z\r\n",
		"DTEND:20261120T220000Z\r\n",
		"SUMMARY:Live\\, Loud\\; Late\r\n",
		"X-ENCORE-ARTIST:Live\\, Loud\\; Late band\r\n",
		"END:VCALENDAR\r\n",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("calendar missing %q", want)
		}
	}
	if export.Filename != "encore-concerts-2026-11-20-to-2026-11-20.ics" {
		t.Errorf("filename = %s", export.Filename)
	}
}

