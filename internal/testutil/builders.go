package testutil

import (
	"github.com/cutline/cutline-jobs/internal/domain/job"
)

// EditSpecBuilder provides a fluent interface for building edit payloads in tests.
type EditSpecBuilder struct {
	spec job.EditSpec
}

// NewEditSpec returns a builder with a valid default payload.
func NewEditSpec() *EditSpecBuilder {
	return &EditSpecBuilder{spec: job.EditSpec{
		URL:         "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
		Music:       "track",
		VideoImpact: 2.5,
		MusicImpact: 10,
	}}
}

// WithURL sets the source video URL.
func (b *EditSpecBuilder) WithURL(u string) *EditSpecBuilder {
	b.spec.URL = u
	return b
}

// WithMusic sets the music asset name.
func (b *EditSpecBuilder) WithMusic(name string) *EditSpecBuilder {
	b.spec.Music = name
	return b
}

// WithImpacts sets the video and music impact points.
func (b *EditSpecBuilder) WithImpacts(video, music float64) *EditSpecBuilder {
	b.spec.VideoImpact = video
	b.spec.MusicImpact = music
	return b
}

// WithReturnFormat sets the result format.
func (b *EditSpecBuilder) WithReturnFormat(f job.ReturnFormat) *EditSpecBuilder {
	b.spec.ReturnFormat = f
	return b
}

// Build returns the payload.
func (b *EditSpecBuilder) Build() job.EditSpec {
	return b.spec
}

// ClipRenderBuilder builds clip render batches in tests.
type ClipRenderBuilder struct {
	spec job.ClipRenderSpec
}

// NewClipRender returns a builder for the given ingest with no clips.
func NewClipRender(ingestID string) *ClipRenderBuilder {
	return &ClipRenderBuilder{spec: job.ClipRenderSpec{VideoIngestID: ingestID}}
}

// WithClip appends a variant using music, optionally trimmed to [start, end].
func (b *ClipRenderBuilder) WithClip(clipID string, order int, music string, window ...float64) *ClipRenderBuilder {
	v := job.ClipVariant{ClipID: clipID, OptionOrder: order, Music: music}
	if len(window) == 2 {
		start, end := window[0], window[1]
		v.VideoStart = &start
		v.VideoEnd = &end
	}
	b.spec.Clips = append(b.spec.Clips, v)
	return b
}

// WithReturnFormat sets the result format.
func (b *ClipRenderBuilder) WithReturnFormat(f job.ReturnFormat) *ClipRenderBuilder {
	b.spec.ReturnFormat = f
	return b
}

// Build returns the payload.
func (b *ClipRenderBuilder) Build() job.ClipRenderSpec {
	return b.spec
}
