/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package concerts provides read-only access to concerts and their setlists.
package concerts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// ErrConcertNotFound is returned for an unknown concert id.
var ErrConcertNotFound = errors.New("concert not found")

// Store looks up concerts.
type Store struct {
	db     *gorm.DB
	logger zerolog.Logger
}

// NewStore creates a store over db.
func NewStore(db *gorm.DB, logger zerolog.Logger) *Store {
	return &Store{
		db:     db,
		logger: logger.With().Str("component", "concerts").Logger(),
	}
}

// Get returns a concert with its songs in setlist order.
func (s *Store) Get(ctx context.Context, id int64) (*Concert, error) {
	var c Concert
	err := s.db.WithContext(ctx).
		Preload("Songs", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC, id ASC")
		}).
		Preload("Artist").
		First(&c, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %d", ErrConcertNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get concert %d: %w", id, err)
	}
	return &c, nil
}

// Upcoming returns concerts starting at or after since, earliest first.
func (s *Store) Upcoming(ctx context.Context, since time.Time) ([]Concert, error) {
	var list []Concert
	if err := s.db.WithContext(ctx).
		Where("start_time >= ?", since).
		Order("start_time ASC").
		Find(&list).Error; err != nil {
		return nil, fmt.Errorf("list upcoming concerts: %w", err)
	}
	return list, nil
}

// Between returns concerts starting in [from, to), earliest first.
func (s *Store) Between(ctx context.Context, from, to time.Time) ([]Concert, error) {
	var list []Concert
	if err := s.db.WithContext(ctx).
		Preload("Artist").
		Where("start_time >= ? AND start_time < ?", from, to).
		Order("start_time ASC").
		Find(&list).Error; err != nil {
		return nil, fmt.Errorf("list concerts: %w", err)
	}
	return list, nil
}

// StartTime returns a concert's scheduled start.
func (s *Store) StartTime(ctx context.Context, id int64) (time.Time, error) {
	var c Concert
	err := s.db.WithContext(ctx).Select("id", "start_time").First(&c, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return time.Time{}, fmt.Errorf("%w: %d", ErrConcertNotFound, id)
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("get concert %d: %w", id, err)
	}
	return c.StartTime, nil
}

// Playlist returns the media locations of a concert's setlist in order.
func (s *Store) Playlist(ctx context.Context, concertID int64) ([]string, error) {
	c, err := s.Get(ctx, concertID)
	if err != nil {
		return nil, err
	}
	locations := make([]string, 0, len(c.Songs))
	for _, song := range c.Songs {
		locations = append(locations, song.FilePath)
	}
	s.logger.Debug().Int64("concert_id", concertID).Int("songs", len(locations)).Msg("loaded playlist")
	return locations, nil
}
