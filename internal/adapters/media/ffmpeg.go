package media

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/cutline/cutline-jobs/internal/core"
	apperrors "github.com/cutline/cutline-jobs/internal/errors"
)

// minTempAudioBytes rejects an aligned track that is effectively empty.
const minTempAudioBytes = 1024

var _ core.Renderer = (*FFmpeg)(nil)

// FFmpegOptions configures an FFmpeg renderer.
type FFmpegOptions struct {
	FFmpegPath  string // defaults to "ffmpeg"
	FFprobePath string // defaults to "ffprobe"
	// GainDB is applied to the music track.
	GainDB  float64
	Timeout time.Duration
	Runner  CommandRunner
	Logger  *slog.Logger
}

// FFmpeg replaces a video's audio with a slice of a music track, aligned so that
// MusicImpact in the track plays at VideoImpact in the video.
type FFmpeg struct {
	ffmpeg  string
	ffprobe string
	gainDB  float64
	timeout time.Duration
	runner  CommandRunner
	logger  *slog.Logger
}

// NewFFmpeg creates a renderer.
func NewFFmpeg(opts FFmpegOptions) *FFmpeg {
	r := &FFmpeg{
		ffmpeg:  opts.FFmpegPath,
		ffprobe: opts.FFprobePath,
		gainDB:  opts.GainDB,
		timeout: opts.Timeout,
		runner:  opts.Runner,
		logger:  opts.Logger,
	}
	if r.ffmpeg == "" {
		r.ffmpeg = "ffmpeg"
	}
	if r.ffprobe == "" {
		r.ffprobe = "ffprobe"
	}
	if r.runner == nil {
		r.runner = ExecRunner{}
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	r.logger = r.logger.With("component", "renderer")
	return r
}

// MusicStart returns where the music slice begins: MusicImpact - VideoImpact,
// clamped so that a full videoDur of music is available.
func MusicStart(videoImpact, musicImpact, videoDur, musicDur float64) float64 {
	start := musicImpact - videoImpact
	maxStart := max(musicDur-videoDur, 0)
	return min(max(start, 0), maxStart)
}

// Render produces req.OutputPath.
func (r *FFmpeg) Render(ctx context.Context, req core.RenderRequest) (string, error) {
	for _, in := range []string{req.VideoPath, req.MusicPath} {
		if _, err := os.Stat(in); err != nil {
			return "", apperrors.Wrapf(err, apperrors.ErrCodeValidation, "render input not found: %s", filepath.Base(in))
		}
	}
	if err := os.MkdirAll(filepath.Dir(req.OutputPath), 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	start := time.Now()

	trimmed := req.TrimDuration > 0
	videoDur := req.TrimDuration
	if !trimmed {
		d, err := r.mediaDuration(ctx, req.VideoPath)
		if err != nil {
			return "", err
		}
		videoDur = d
	}
	musicDur, err := r.mediaDuration(ctx, req.MusicPath)
	if err != nil {
		return "", err
	}
	musicStart := MusicStart(req.VideoImpact, req.MusicImpact, videoDur, musicDur)

	tempAudio := filepath.Join(filepath.Dir(req.OutputPath), "audio_"+uuid.NewString()+".wav")
	defer func() {
		if rmErr := os.Remove(tempAudio); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			r.logger.Warn("remove temp audio", "path", tempAudio, "error", rmErr)
		}
	}()

	if _, err := r.runner.Run(ctx, r.ffmpeg,
		"-y", "-nostdin", "-loglevel", "error",
		"-i", req.MusicPath,
		"-ss", formatSeconds(musicStart),
		"-t", formatSeconds(videoDur),
		"-ac", "2", "-ar", "48000",
		"-af", fmt.Sprintf("volume=%sdB", strconv.FormatFloat(r.gainDB, 'f', -1, 64)),
		"-c:a", "pcm_s16le",
		tempAudio,
	); err != nil {
		return "", apperrors.Wrap(err, apperrors.ErrCodeExternalFailure, "audio alignment failed")
	}
	if info, statErr := os.Stat(tempAudio); statErr != nil || info.Size() < minTempAudioBytes {
		return "", apperrors.ExternalFailuref("aligned audio track is empty")
	}

	args := []string{"-y", "-nostdin", "-loglevel", "error"}
	if trimmed {
		args = append(args, "-ss", formatSeconds(req.TrimStart), "-t", formatSeconds(req.TrimDuration))
	}
	args = append(args,
		"-i", req.VideoPath, "-i", tempAudio,
		"-map", "0:v:0", "-map", "1:a:0",
		"-c:v", "libx264", "-pix_fmt", "yuv420p",
		"-preset", "veryfast", "-crf", "20",
		"-c:a", "aac", "-b:a", "192k", "-ar", "48000",
		"-shortest",
		req.OutputPath,
	)
	if _, err := r.runner.Run(ctx, r.ffmpeg, args...); err != nil {
		return "", apperrors.Wrap(err, apperrors.ErrCodeExternalFailure, "render failed")
	}

	if _, err := os.Stat(req.OutputPath); err != nil {
		return "", apperrors.ExternalFailuref("render produced no output")
	}
	r.logger.Info("render finished",
		"output", filepath.Base(req.OutputPath),
		"music_start", musicStart,
		"video_duration", videoDur,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return req.OutputPath, nil
}

type ffprobeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

func (r *FFmpeg) mediaDuration(ctx context.Context, path string) (float64, error) {
	out, err := r.runner.Run(ctx, r.ffprobe,
		"-v", "error", "-show_entries", "format=duration", "-of", "json", path)
	if err != nil {
		return 0, apperrors.Wrapf(err, apperrors.ErrCodeExternalFailure, "read duration of %s", filepath.Base(path))
	}
	var parsed ffprobeOutput
	if err := json.Unmarshal(out, &parsed); err != nil {
		return 0, apperrors.Wrapf(err, apperrors.ErrCodeExternalFailure, "read duration of %s: unreadable output", filepath.Base(path))
	}
	d, err := strconv.ParseFloat(parsed.Format.Duration, 64)
	if err != nil || d <= 0 {
		return 0, apperrors.ExternalFailuref("read duration of %s: no duration", filepath.Base(path))
	}
	return d, nil
}

func formatSeconds(s float64) string {
	return strconv.FormatFloat(s, 'f', 3, 64)
}
