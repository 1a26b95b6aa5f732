/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package server

import (
	"context"
	"fmt"
	"time"
)

// ScheduleUpcoming arms the start trigger of every concert that has not yet
// started, plus those that started within the boot lookback. Concerts whose
// start time has passed are started right away. It returns the number of
// broadcasts scheduled.
func (s *Server) ScheduleUpcoming(ctx context.Context) (int, error) {
	since := time.Now().Add(-s.cfg.BootLookback)
	list, err := s.store.Upcoming(ctx, since)
	if err != nil {
		return 0, fmt.Errorf("load upcoming concerts: %w", err)
	}

	scheduled := 0
	for _, concert := range list {
		coord, err := s.registry.Get(concert.ID)
		if err != nil {
			s.logger.Error().Err(err).Int64("concert_id", concert.ID).Msg("create coordinator at boot")
			continue
		}
		if err := coord.ScheduleStart(ctx, concert.StartTime); err != nil {
			s.logger.Error().Err(err).Int64("concert_id", concert.ID).Msg("schedule concert at boot")
			continue
		}
		scheduled++
	}

	s.logger.Info().
		Int("concerts", len(list)).
		Int("scheduled", scheduled).
		Dur("lookback", s.cfg.BootLookback).
		Msg("upcoming broadcasts scheduled")
	return scheduled, nil
}
