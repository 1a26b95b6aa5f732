/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package playlist compiles a concert setlist into one continuous raw PCM
// resource.
package playlist

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/encore/internal/audio"
)

var (
	// ErrEmptyPlaylist is returned when there is nothing to compile.
	ErrEmptyPlaylist = errors.New("playlist is empty")

	// ErrAssetNotFound is returned when a playlist entry cannot be found.
	ErrAssetNotFound = errors.New("playlist asset not found")
)

// Compiler merges an ordered list of asset locations into one resource of
// 48 kHz stereo s16le PCM.
type Compiler interface {
	Compile(ctx context.Context, locations []string) (*Resource, error)
}

// Resource is a compiled playlist on local disk. The caller owns it and
// must Remove it.
type Resource struct {
	Path string
	Size int64

	once sync.Once
	err  error
}

// Remove deletes the resource. Calling it more than once is harmless.
func (r *Resource) Remove() error {
	if r == nil {
		return nil
	}
	r.once.Do(func() {
		if err := os.Remove(r.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			r.err = err
		}
	})
	return r.err
}

// FFmpegConfig holds compiler configuration.
type FFmpegConfig struct {
	Bin     string // ffmpeg binary (default: "ffmpeg")
	TempDir string // where compiled resources are written (default: os.TempDir())
}

// FFmpegCompiler runs ffmpeg to decode, resample and concatenate assets.
type FFmpegCompiler struct {
	cfg      FFmpegConfig
	resolver Resolver
	logger   zerolog.Logger
}

// NewFFmpegCompiler creates a compiler resolving locations through r.
func NewFFmpegCompiler(cfg FFmpegConfig, r Resolver, logger zerolog.Logger) *FFmpegCompiler {
	if cfg.Bin == "" {
		cfg.Bin = "ffmpeg"
	}
	return &FFmpegCompiler{
		cfg:      cfg,
		resolver: r,
		logger:   logger.With().Str("component", "compiler").Logger(),
	}
}

// Compile implements Compiler.
func (c *FFmpegCompiler) Compile(ctx context.Context, locations []string) (*Resource, error) {
	if len(locations) == 0 {
		return nil, ErrEmptyPlaylist
	}

	inputs := make([]string, 0, len(locations))
	for _, loc := range locations {
		in, err := c.resolver.Resolve(ctx, loc)
		if err != nil {
			return nil, err
		}
		inputs = append(inputs, in)
	}

	out, err := os.CreateTemp(c.cfg.TempDir, "encore-*.pcm")
	if err != nil {
		return nil, fmt.Errorf("create output: %w", err)
	}
	path := out.Name()
	out.Close()

	start := time.Now()
	cmd := exec.CommandContext(ctx, c.cfg.Bin, buildArgs(inputs, path)...)
	cmd.Cancel = func() error { return cmd.Process.Signal(os.Interrupt) }
	cmd.WaitDelay = 5 * time.Second
	stderr := &tailBuffer{max: 2048}
	cmd.Stderr = stderr

	c.logger.Info().Int("tracks", len(inputs)).Str("output", path).Msg("compiling playlist")

	if err := cmd.Run(); err != nil {
		os.Remove(path)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("ffmpeg: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat output: %w", err)
	}
	if info.Size() < audio.FrameBytes {
		os.Remove(path)
		return nil, fmt.Errorf("ffmpeg produced %d bytes, less than one frame", info.Size())
	}

	c.logger.Info().
		Str("output", path).
		Int64("bytes", info.Size()).
		Dur("took", time.Since(start)).
		Msg("playlist compiled")

	return &Resource{Path: path, Size: info.Size()}, nil
}

// buildArgs resamples every input to the broadcast format and concatenates
// them in order into raw PCM at out.
func buildArgs(inputs []string, out string) []string {
	args := []string{"-hide_banner", "-nostdin", "-loglevel", "error", "-y"}
	for _, in := range inputs {
		args = append(args, "-i", in)
	}

	var graph strings.Builder
	for i := range inputs {
		fmt.Fprintf(&graph, "[%d:a]aresample=%d,aformat=sample_fmts=s16:channel_layouts=stereo[a%d];",
			i, audio.SampleRate, i)
	}
	for i := range inputs {
		fmt.Fprintf(&graph, "[a%d]", i)
	}
	fmt.Fprintf(&graph, "concat=n=%d:v=0:a=1[out]", len(inputs))

	return append(args,
		"-filter_complex", graph.String(),
		"-map", "[out]",
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"-ar", fmt.Sprint(audio.SampleRate),
		"-ac", fmt.Sprint(audio.Channels),
		out,
	)
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	max int
	buf []byte
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.buf = append(b.buf, p...)
	if len(b.buf) > b.max {
		b.buf = b.buf[len(b.buf)-b.max:]
	}
	return len(p), nil
}

func (b *tailBuffer) String() string { return string(b.buf) }
