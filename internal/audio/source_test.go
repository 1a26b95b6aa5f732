/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFrameDuration(t *testing.T) {
	if FrameDuration != 20*time.Millisecond {
		t.Fatalf("FrameDuration = %v, want 20ms", FrameDuration)
	}
	if FrameBytes != 3840 {
		t.Fatalf("FrameBytes = %d, want 3840", FrameBytes)
	}
}

func TestSilenceGeneratorTimestamps(t *testing.T) {
	g := NewSilenceGenerator(0)

	var last uint64
	for i := 0; i < 50; i++ {
		f, err := g.ReadFrame()
		if err != nil {
			t.Fatalf("ReadFrame: %v", err)
		}
		if !f.Silent {
			t.Fatal("expected silent frame")
		}
		if len(f.Samples) != SamplesPerFrame*Channels {
			t.Fatalf("got %d samples, want %d", len(f.Samples), SamplesPerFrame*Channels)
		}
		for _, s := range f.Samples {
			if s != 0 {
				t.Fatalf("non-zero sample %d in silence", s)
			}
		}
		if i > 0 && f.Timestamp != last+SamplesPerFrame {
			t.Fatalf("frame %d timestamp = %d, want %d", i, f.Timestamp, last+SamplesPerFrame)
		}
		last = f.Timestamp
	}
}

func pcmBytes(frames int, extraSamples int) []byte {
	var buf bytes.Buffer
	total := frames*SamplesPerFrame*Channels + extraSamples
	for i := 0; i < total; i++ {
		_ = binary.Write(&buf, binary.LittleEndian, int16(i%1000))
	}
	return buf.Bytes()
}

func TestPCMSourceReadsWholeFrames(t *testing.T) {
	src := NewPCMSource(bytes.NewReader(pcmBytes(3, 0)))

	for i := 0; i < 3; i++ {
		f, err := src.ReadFrame()
		if err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
		if f.Timestamp != uint64(i*SamplesPerFrame) {
			t.Errorf("frame %d timestamp = %d", i, f.Timestamp)
		}
		if f.Silent {
			t.Errorf("frame %d marked silent", i)
		}
	}

	if _, err := src.ReadFrame(); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF, got %v", err)
	}
	if _, err := src.ReadFrame(); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF to repeat, got %v", err)
	}
}

func TestPCMSourcePadsTrailingPartialFrame(t *testing.T) {
	src := NewPCMSource(bytes.NewReader(pcmBytes(1, 10)))

	if _, err := src.ReadFrame(); err != nil {
		t.Fatalf("first frame: %v", err)
	}
	f, err := src.ReadFrame()
	if err != nil {
		t.Fatalf("partial frame: %v", err)
	}
	if len(f.Samples) != SamplesPerFrame*Channels {
		t.Fatalf("partial frame has %d samples", len(f.Samples))
	}
	if f.Samples[10] != 0 || f.Samples[len(f.Samples)-1] != 0 {
		t.Error("partial frame tail not zero padded")
	}
	if _, err := src.ReadFrame(); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF after partial frame, got %v", err)
	}
}

func TestOpenPCMAndClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "show.pcm")
	if err := os.WriteFile(path, pcmBytes(2, 0), 0o600); err != nil {
		t.Fatal(err)
	}

	src, err := OpenPCM(path)
	if err != nil {
		t.Fatalf("OpenPCM: %v", err)
	}
	if _, err := src.ReadFrame(); err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if err := src.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := src.ReadFrame(); !errors.Is(err, io.EOF) {
		t.Fatalf("read after close = %v, want io.EOF", err)
	}
	if err := src.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestOpenPCMMissingFile(t *testing.T) {
	if _, err := OpenPCM(filepath.Join(t.TempDir(), "missing.pcm")); err == nil {
		t.Fatal("expected error for missing resource")
	}
}
