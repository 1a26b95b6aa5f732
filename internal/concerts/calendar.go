/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package concerts

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"
)

// DefaultConcertLength is used for DTEND since concerts carry no end time.
const DefaultConcertLength = 2 * time.Hour

// CalendarExport is an iCal document of broadcast start times.
type CalendarExport struct {
	Data        []byte
	Filename    string
	ContentType string
}

// ExportICal renders concerts starting in [from, to) as an iCal feed.
func (s *Store) ExportICal(ctx context.Context, from, to time.Time) (*CalendarExport, error) {
	list, err := s.Between(ctx, from, to)
	if err != nil {
		return nil, err
	}
	return &CalendarExport{
		Data:        renderICal(list, time.Now()),
		Filename:    fmt.Sprintf("encore-concerts-%s-to-%s.ics", from.Format("2006-01-02"), to.Format("2006-01-02")),
		ContentType: "text/calendar; charset=utf-8",
	}, nil
}

func renderICal(list []Concert, stamp time.Time) []byte {
	var buf bytes.Buffer
	buf.WriteString("BEGIN:VCALENDAR\r\n")
	buf.WriteString("VERSION:2.0\r\n")
	buf.WriteString("PRODID:-//Encore//Concert Broadcasts//EN\r\n")
	buf.WriteString("X-WR-CALNAME:Encore Live\r\n")
	buf.WriteString("CALSCALE:GREGORIAN\r\n")
	buf.WriteString("METHOD:PUBLISH\r\n")

	for _, c := range list {
		buf.WriteString("BEGIN:VEVENT\r\n")
		fmt.Fprintf(&buf, "UID:concert-%d@encore\r\n", c.ID)
		fmt.Fprintf(&buf, "DTSTAMP:%s\r\n", formatICalTime(stamp))
		fmt.Fprintf(&buf, "DTSTART:%s\r\n", formatICalTime(c.StartTime))
		fmt.Fprintf(&buf, "DTEND:%s\r\n", formatICalTime(c.StartTime.Add(DefaultConcertLength)))
		fmt.Fprintf(&buf, "SUMMARY:%s\r\n", escapeICalText(c.Name))
		if c.Description != "" {
			fmt.Fprintf(&buf, "DESCRIPTION:%s\r\n", escapeICalText(c.Description))
		}
		if c.Artist != nil && c.Artist.Name != "" {
			fmt.Fprintf(&buf, "X-ENCORE-ARTIST:%s\r\n", escapeICalText(c.Artist.Name))
		}
		buf.WriteString("END:VEVENT\r\n")
	}

	buf.WriteString("END:VCALENDAR\r\n")
	return buf.Bytes()
}

func formatICalTime(t time.Time) string {
	return t.UTC().Format("20060102T150405Z")
}

func escapeICalText(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, ";", "\\;")
	s = strings.ReplaceAll(s, ",", "\\,")
	s = strings.ReplaceAll(s, "\n", "\\n")
	return s
}
