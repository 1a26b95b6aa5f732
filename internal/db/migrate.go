/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package db

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/friendsincode/encore/internal/concerts"
)

// Migrate creates the concert tables. Production schemas are owned by the
// catalogue service; this exists for local development and tests.
func Migrate(database *gorm.DB) error {
	if err := database.AutoMigrate(concerts.Models()...); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}
	return nil
}
