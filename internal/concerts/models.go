/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package concerts

import "time"

// Artist performs concerts.
type Artist struct {
	ID   int64  `gorm:"primaryKey"`
	Name string `gorm:"type:varchar(255);not null"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName returns the table name for GORM.
func (Artist) TableName() string {
	return "artists"
}

// Concert is a scheduled live broadcast and its setlist.
type Concert struct {
	ID          int64     `gorm:"primaryKey"`
	ArtistID    int64     `gorm:"index:idx_concerts_artist;not null"`
	Name        string    `gorm:"type:varchar(255);not null"`
	Description string    `gorm:"type:text"`
	StartTime   time.Time `gorm:"index:idx_concerts_start;not null"`

	// Relationships
	Artist *Artist `gorm:"foreignKey:ArtistID"`
	Songs  []Song  `gorm:"foreignKey:ConcertID"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName returns the table name for GORM.
func (Concert) TableName() string {
	return "concerts"
}

// Song is one setlist entry. FilePath is a media location: a path under the
// media root, an http(s) URL or an s3:// object.
type Song struct {
	ID        int64  `gorm:"primaryKey"`
	ConcertID int64  `gorm:"index:idx_songs_concert;not null"`
	Position  int    `gorm:"not null;default:0"`
	Name      string `gorm:"type:varchar(255);not null"`
	FilePath  string `gorm:"type:varchar(1024);not null"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName returns the table name for GORM.
func (Song) TableName() string {
	return "songs"
}

// Models lists the tables this package reads, for auto-migration.
func Models() []any {
	return []any{&Artist{}, &Concert{}, &Song{}}
}
