/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
)

func TestSetupLevels(t *testing.T) {
	tests := []struct {
		env  string
		want zerolog.Level
	}{
		{"development", zerolog.DebugLevel},
		{"production", zerolog.InfoLevel},
		{"staging", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			logger := SetupWithWriter(tt.env, &bytes.Buffer{})
			if logger.GetLevel() != tt.want {
				t.Fatalf("level = %v, want %v", logger.GetLevel(), tt.want)
			}
		})
	}
}

func TestProductionLogsJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := SetupWithWriter("production", &buf)
	logger.Info().Str("component", "registry").Int64("concert_id", 7).Msg("coordinator created")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("production output is not JSON: %v\n%s", err, buf.String())
	}
	if entry["component"] != "registry" || entry["message"] != "coordinator created" {
		t.Fatalf("unexpected entry %v", entry)
	}
}
