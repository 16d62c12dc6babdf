package job

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cutline/cutline-jobs/internal/domain/model"
	apperrors "github.com/cutline/cutline-jobs/internal/errors"
)

func TestParse_Edit(t *testing.T) {
	k, err := Parse(model.JobKindEdit, json.RawMessage(`{
		"url": "https://example.com/a",
		"music": "track-1",
		"impact_video": 3.0,
		"impact_music": 12.5
	}`))
	require.NoError(t, err)

	spec, ok := k.(EditSpec)
	require.True(t, ok)
	assert.Equal(t, "track-1", spec.Music)
	assert.InDelta(t, 3.0, spec.VideoImpact, 1e-9)
	assert.Equal(t, ReturnFormatURL, spec.ReturnFormat.OrDefault())
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name    string
		kind    model.JobKind
		payload string
		field   string
	}{
		{"unknown kind", model.JobKind("remix"), `{}`, "mode"},
		{"missing url", model.JobKindEdit, `{"music":"m"}`, "url"},
		{"relative url", model.JobKindEdit, `{"url":"/a","music":"m"}`, "url"},
		{"traversal music", model.JobKindEdit, `{"url":"https://x/a","music":"../etc"}`, "music"},
		{"negative impact", model.JobKindEdit, `{"url":"https://x/a","music":"m","impact_video":-1}`, "impact_video"},
		{"bad format", model.JobKindEdit, `{"url":"https://x/a","music":"m","return_format":"gif"}`, "return_format"},
		{"unknown field", model.JobKindEdit, `{"url":"https://x/a","music":"m","extra":1}`, ""},
		{"no clips", model.JobKindClipRender, `{"video_ingest_id":"ing-1","clips":[]}`, "clips"},
		{
			"duplicate clip", model.JobKindClipRender,
			`{"video_ingest_id":"ing-1","clips":[{"clip_id":"c1","music":"m"},{"clip_id":"c1","music":"m"}]}`,
			"clips[1].clip_id",
		},
		{
			"half trim", model.JobKindClipRender,
			`{"video_ingest_id":"ing-1","clips":[{"clip_id":"c1","music":"m","video_start_seconds":1}]}`,
			"clips[0]",
		},
		{
			"base64 batch", model.JobKindClipRender,
			`{"video_ingest_id":"ing-1","return_format":"base64","clips":[{"clip_id":"c1","music":"m"}]}`,
			"return_format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.kind, json.RawMessage(tt.payload))
			require.Error(t, err)
			assert.True(t, apperrors.IsValidation(err))
			assert.Equal(t, tt.field, apperrors.GetField(err))
		})
	}
}

func TestClipVariant_Trim(t *testing.T) {
	start, end := 4.0, 4.05
	v := ClipVariant{VideoStart: &start, VideoEnd: &end}
	s, d, ok := v.Trim()
	require.True(t, ok)
	assert.InDelta(t, 4.0, s, 1e-9)
	assert.InDelta(t, 0.1, d, 1e-9)

	_, _, ok = ClipVariant{}.Trim()
	assert.False(t, ok)
}

func TestEncodeDecodeRequest(t *testing.T) {
	start, end := 1.0, 6.0
	original := ClipRenderSpec{
		VideoIngestID: "ing-1",
		Clips: []ClipVariant{
			{ClipID: "c1", OptionOrder: 1, Music: "m1", VideoStart: &start, VideoEnd: &end},
			{ClipID: "c2", OptionOrder: 2, Music: "m2", MusicStart: 3},
		},
	}

	raw, err := EncodeRequest(original)
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(raw, &fields))
	assert.Equal(t, "clip_render", fields["mode"])

	decoded, err := DecodeRequest(raw)
	require.NoError(t, err)
	assert.Equal(t, original, decoded)
}

func TestDecodeRequest_DefaultsToEdit(t *testing.T) {
	k, err := DecodeRequest(json.RawMessage(`{"url":"https://example.com/a","music":"m"}`))
	require.NoError(t, err)
	assert.Equal(t, model.JobKindEdit, k.JobKind())
}
