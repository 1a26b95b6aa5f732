/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package audio

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
)

// PCMSource decodes raw s16le stereo 48 kHz audio into frames. It is the
// decoder for resources produced by the playlist compiler.
type PCMSource struct {
	mu       sync.Mutex
	r        *bufio.Reader
	closer   io.Closer
	buf      []byte
	position uint64
	done     bool
}

// OpenPCM opens a compiled PCM resource on disk.
func OpenPCM(path string) (*PCMSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pcm resource: %w", err)
	}
	return NewPCMSource(f), nil
}

// NewPCMSource wraps an already open reader. If r implements io.Closer it is
// closed by Close.
func NewPCMSource(r io.Reader) *PCMSource {
	s := &PCMSource{
		r:   bufio.NewReaderSize(r, FrameBytes*8),
		buf: make([]byte, FrameBytes),
	}
	if c, ok := r.(io.Closer); ok {
		s.closer = c
	}
	return s
}

// ReadFrame implements Source. A trailing partial frame is padded with
// silence; the call after it returns io.EOF.
func (s *PCMSource) ReadFrame() (*Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done {
		return nil, io.EOF
	}

	n, err := io.ReadFull(s.r, s.buf)
	switch {
	case err == nil:
	case errors.Is(err, io.ErrUnexpectedEOF):
		clear(s.buf[n:])
		s.done = true
	case errors.Is(err, io.EOF):
		s.done = true
		return nil, io.EOF
	default:
		return nil, fmt.Errorf("read pcm frame: %w", err)
	}

	samples := make([]int16, SamplesPerFrame*Channels)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(s.buf[i*BytesPerSample:]))
	}

	frame := &Frame{Samples: samples, Timestamp: s.position}
	s.position += SamplesPerFrame
	return frame, nil
}

// Close releases the underlying reader.
func (s *PCMSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.done = true
	if s.closer == nil {
		return nil
	}
	err := s.closer.Close()
	s.closer = nil
	return err
}
