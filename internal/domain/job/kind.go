// Package job holds the job-kind sum type and the policies applied while a job runs.
package job

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/cutline/cutline-jobs/internal/domain/model"
	apperrors "github.com/cutline/cutline-jobs/internal/errors"
)

// ReturnFormat selects how a produced file is described in the job result.
type ReturnFormat string

const (
	// ReturnFormatURL describes the output by its public URL (default).
	ReturnFormatURL ReturnFormat = "url"
	// ReturnFormatPath describes the output by its local path.
	ReturnFormatPath ReturnFormat = "path"
	// ReturnFormatBase64 inlines the output bytes.
	ReturnFormatBase64 ReturnFormat = "base64"
)

// Valid returns true if the format is known. Empty means the default.
func (f ReturnFormat) Valid() bool {
	switch f {
	case "", ReturnFormatURL, ReturnFormatPath, ReturnFormatBase64:
		return true
	}
	return false
}

// OrDefault returns ReturnFormatURL when f is empty.
func (f ReturnFormat) OrDefault() ReturnFormat {
	if f == "" {
		return ReturnFormatURL
	}
	return f
}

// Kind is one variant of submitted work. The set of variants is closed:
// EditSpec and ClipRenderSpec.
type Kind interface {
	JobKind() model.JobKind
	Validate() error
	sealed()
}

// EditSpec combines one remote video with one music track.
type EditSpec struct {
	URL          string       `json:"url"`
	Music        string       `json:"music"`
	VideoImpact  float64      `json:"impact_video"`
	MusicImpact  float64      `json:"impact_music"`
	ReturnFormat ReturnFormat `json:"return_format,omitempty"`
}

// JobKind implements Kind.
func (EditSpec) JobKind() model.JobKind { return model.JobKindEdit }

func (EditSpec) sealed() {}

// Validate checks the payload shape. Asset existence is checked by the executor.
func (s EditSpec) Validate() error {
	if strings.TrimSpace(s.URL) == "" {
		return apperrors.ValidationField("url", "url is required")
	}
	u, err := url.Parse(s.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return apperrors.ValidationField("url", "url must be an absolute http(s) URL")
	}
	if err := validateAssetName("music", s.Music); err != nil {
		return err
	}
	if s.VideoImpact < 0 {
		return apperrors.ValidationField("impact_video", "impact_video must be >= 0")
	}
	if s.MusicImpact < 0 {
		return apperrors.ValidationField("impact_music", "impact_music must be >= 0")
	}
	if !s.ReturnFormat.Valid() {
		return apperrors.ValidationField("return_format", "return_format must be one of url, path, base64")
	}
	return nil
}

// ClipVariant is one requested rendition of a clip render batch.
type ClipVariant struct {
	ClipID      string   `json:"clip_id"`
	OptionOrder int      `json:"option_order"`
	Music       string   `json:"music"`
	VideoStart  *float64 `json:"video_start_seconds,omitempty"`
	VideoEnd    *float64 `json:"video_end_seconds,omitempty"`
	MusicStart  float64  `json:"music_start_seconds,omitempty"`
}

// Trim returns the video window to cut, if both bounds are set.
// The duration never drops below 100ms.
func (v ClipVariant) Trim() (start, duration float64, ok bool) {
	if v.VideoStart == nil || v.VideoEnd == nil {
		return 0, 0, false
	}
	start = *v.VideoStart
	duration = *v.VideoEnd - start
	if duration < 0.1 {
		duration = 0.1
	}
	return start, duration, true
}

// ClipRenderSpec renders several variants of one ingested video.
type ClipRenderSpec struct {
	VideoIngestID string        `json:"video_ingest_id"`
	Clips         []ClipVariant `json:"clips"`
	ReturnFormat  ReturnFormat  `json:"return_format,omitempty"`
}

// JobKind implements Kind.
func (ClipRenderSpec) JobKind() model.JobKind { return model.JobKindClipRender }

func (ClipRenderSpec) sealed() {}

// Validate checks the batch shape.
func (s ClipRenderSpec) Validate() error {
	if err := validateAssetName("video_ingest_id", s.VideoIngestID); err != nil {
		return err
	}
	if len(s.Clips) == 0 {
		return apperrors.ValidationField("clips", "at least one clip is required")
	}
	seen := make(map[string]struct{}, len(s.Clips))
	for i, c := range s.Clips {
		field := fmt.Sprintf("clips[%d]", i)
		if strings.TrimSpace(c.ClipID) == "" {
			return apperrors.ValidationField(field+".clip_id", "clip_id is required")
		}
		if _, dup := seen[c.ClipID]; dup {
			return apperrors.ValidationField(field+".clip_id", "duplicate clip_id "+c.ClipID)
		}
		seen[c.ClipID] = struct{}{}
		if err := validateAssetName(field+".music", c.Music); err != nil {
			return err
		}
		if (c.VideoStart == nil) != (c.VideoEnd == nil) {
			return apperrors.ValidationField(field, "video_start_seconds and video_end_seconds go together")
		}
	}
	if s.ReturnFormat == ReturnFormatBase64 {
		return apperrors.ValidationField("return_format", "base64 is not supported for clip renders")
	}
	if !s.ReturnFormat.Valid() {
		return apperrors.ValidationField("return_format", "return_format must be url or path")
	}
	return nil
}

// validateAssetName rejects names that could escape the asset directories.
func validateAssetName(field, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return apperrors.ValidationField(field, field+" is required")
	}
	if strings.ContainsAny(name, `/\`) || name == "." || name == ".." || strings.HasPrefix(name, ".") {
		return apperrors.ValidationField(field, field+" must be a plain asset name")
	}
	return nil
}

// Parse decodes and validates the payload for the given kind.
func Parse(kind model.JobKind, payload json.RawMessage) (Kind, error) {
	var (
		k   Kind
		err error
	)
	switch kind {
	case model.JobKindEdit:
		var s EditSpec
		err = decodeStrict(payload, &s)
		k = s
	case model.JobKindClipRender:
		var s ClipRenderSpec
		err = decodeStrict(payload, &s)
		k = s
	default:
		return nil, apperrors.ValidationField("mode", fmt.Sprintf("unknown job kind %q", kind))
	}
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, "malformed payload")
	}
	if err := k.Validate(); err != nil {
		return nil, err
	}
	return k, nil
}

// EncodeRequest renders a Kind as the request document stored on the job record:
// the payload fields plus a "mode" discriminator.
func EncodeRequest(k Kind) (json.RawMessage, error) {
	body, err := json.Marshal(k)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", k.JobKind(), err)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", k.JobKind(), err)
	}
	mode, _ := json.Marshal(k.JobKind())
	fields["mode"] = mode
	return json.Marshal(fields)
}

// DecodeRequest is the inverse of EncodeRequest. A missing mode means edit.
func DecodeRequest(raw json.RawMessage) (Kind, error) {
	var head struct {
		Mode model.JobKind `json:"mode"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, "malformed request")
	}
	if head.Mode == "" {
		head.Mode = model.JobKindEdit
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, "malformed request")
	}
	delete(fields, "mode")
	payload, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("re-encode request: %w", err)
	}
	return Parse(head.Mode, payload)
}

func decodeStrict(payload json.RawMessage, dst any) error {
	if len(bytes.TrimSpace(payload)) == 0 {
		payload = json.RawMessage("{}")
	}
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
