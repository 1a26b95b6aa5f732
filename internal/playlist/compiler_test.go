/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package playlist

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestBuildArgs(t *testing.T) {
	args := buildArgs([]string{"/media/a.mp3", "https://cdn.example.org/b.flac"}, "/tmp/out.pcm")
	joined := strings.Join(args, " ")

	for _, want := range []string{
		"-i /media/a.mp3 -i https://cdn.example.org/b.flac",
		"[0:a]aresample=48000,aformat=sample_fmts=s16:channel_layouts=stereo[a0];",
		"[1:a]aresample=48000,aformat=sample_fmts=s16:channel_layouts=stereo[a1];",
		"[a0][a1]concat=n=2:v=0:a=1[out]",
		"-map [out] -f s16le -acodec pcm_s16le -ar 48000 -ac 2",
	} {
		if !strings.Contains(joined, want) {
			t.Errorf("args missing %q\n%s", want, joined)
		}
	}
	if args[len(args)-1] != "/tmp/out.pcm" {
		t.Errorf("output is %q, want last argument", args[len(args)-1])
	}
}

func TestLocalResolver(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "opener.mp3"), []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}
	r := LocalResolver{Root: root}

	tests := []struct {
		name     string
		location string
		want     string
		wantErr  error
	}{
		{"relative", "opener.mp3", filepath.Join(root, "opener.mp3"), nil},
		{"absolute", filepath.Join(root, "opener.mp3"), filepath.Join(root, "opener.mp3"), nil},
		{"file url", "file://" + filepath.Join(root, "opener.mp3"), filepath.Join(root, "opener.mp3"), nil},
		{"missing", "encore.mp3", "", ErrAssetNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Resolve(context.Background(), tt.location)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Fatalf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseS3Location(t *testing.T) {
	tests := []struct {
		location   string
		bucket     string
		key        string
		shouldFail bool
	}{
		{"s3://concerts/2026/opener.flac", "concerts", "2026/opener.flac", false},
		{"s3://concerts/", "", "", true},
		{"s3:///key", "", "", true},
		{"https://concerts/key", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.location, func(t *testing.T) {
			bucket, key, err := parseS3Location(tt.location)
			if tt.shouldFail {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if bucket != tt.bucket || key != tt.key {
				t.Fatalf("got %s/%s", bucket, key)
			}
		})
	}
}

func TestS3ResolverPresigns(t *testing.T) {
	r, err := NewS3Resolver(context.Background(), S3Config{
		AccessKeyID:     "AKIDEXAMPLE",
		SecretAccessKey: "secret",
		Region:          "us-east-1",
		Endpoint:        "http://localhost:9000",
		UsePathStyle:    true,
		PresignTTL:      10 * time.Minute,
	}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewS3Resolver: %v", err)
	}

	u, err := r.Resolve(context.Background(), "s3://concerts/set/opener.flac")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !strings.HasPrefix(u, "http://localhost:9000/concerts/set/opener.flac?") {
		t.Errorf("unexpected presigned URL %s", u)
	}
	if !strings.Contains(u, "X-Amz-Signature=") {
		t.Errorf("presigned URL not signed: %s", u)
	}
}

func TestSchemeResolver(t *testing.T) {
	r := SchemeResolver{Local: LocalResolver{Root: t.TempDir()}}

	got, err := r.Resolve(context.Background(), "https://cdn.example.org/a.mp3")
	if err != nil || got != "https://cdn.example.org/a.mp3" {
		t.Fatalf("http passthrough = %q, %v", got, err)
	}
	if _, err := r.Resolve(context.Background(), "s3://bucket/a.mp3"); !errors.Is(err, ErrAssetNotFound) {
		t.Fatalf("s3 without storage = %v, want ErrAssetNotFound", err)
	}
	if _, err := r.Resolve(context.Background(), "nope.mp3"); !errors.Is(err, ErrAssetNotFound) {
		t.Fatalf("missing local = %v, want ErrAssetNotFound", err)
	}
}

func TestCompileRejectsBadPlaylists(t *testing.T) {
	c := NewFFmpegCompiler(FFmpegConfig{TempDir: t.TempDir()}, LocalResolver{Root: t.TempDir()}, zerolog.Nop())

	if _, err := c.Compile(context.Background(), nil); !errors.Is(err, ErrEmptyPlaylist) {
		t.Fatalf("empty playlist = %v, want ErrEmptyPlaylist", err)
	}
	if _, err := c.Compile(context.Background(), []string{"missing.mp3"}); !errors.Is(err, ErrAssetNotFound) {
		t.Fatalf("missing asset = %v, want ErrAssetNotFound", err)
	}
}

// fakeFFmpeg writes a script that behaves like ffmpeg for Compile.
func fakeFFmpeg(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script stand-in needs a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "ffmpeg")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestCompileWithFakeFFmpeg(t *testing.T) {
	media := t.TempDir()
	for _, name := range []string{"one.mp3", "two.mp3"} {
		if err := os.WriteFile(filepath.Join(media, name), []byte("x"), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	tmp := t.TempDir()
	bin := fakeFFmpeg(t, `for last; do :; done
head -c 7680 /dev/zero > "$last"
`)

	c := NewFFmpegCompiler(FFmpegConfig{Bin: bin, TempDir: tmp}, LocalResolver{Root: media}, zerolog.Nop())
	res, err := c.Compile(context.Background(), []string{"one.mp3", "two.mp3"})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	if res.Size != 7680 {
		t.Fatalf("resource size = %d, want 7680", res.Size)
	}
	if filepath.Dir(res.Path) != tmp {
		t.Fatalf("resource written to %s, want %s", res.Path, tmp)
	}

	if err := res.Remove(); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := res.Remove(); err != nil {
		t.Fatalf("second Remove: %v", err)
	}
	if _, err := os.Stat(res.Path); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("resource still on disk: %v", err)
	}
}

func TestCompileReportsFFmpegFailure(t *testing.T) {
	media := t.TempDir()
	if err := os.WriteFile(filepath.Join(media, "one.mp3"), []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}
	tmp := t.TempDir()
	bin := fakeFFmpeg(t, "echo 'Invalid data found when processing input' >&2\nexit 1\n")

	c := NewFFmpegCompiler(FFmpegConfig{Bin: bin, TempDir: tmp}, LocalResolver{Root: media}, zerolog.Nop())
	_, err := c.Compile(context.Background(), []string{"one.mp3"})
	if err == nil {
		t.Fatal("expected ffmpeg failure")
	}
	if !strings.Contains(err.Error(), "Invalid data found") {
		t.Errorf("error does not carry stderr: %v", err)
	}

	entries, _ := os.ReadDir(tmp)
	if len(entries) != 0 {
		t.Fatalf("failed compile left %d files behind", len(entries))
	}
}
