package stages

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/speechcoach/pipeline/artifact"
	"github.com/speechcoach/pipeline/engines"
	"github.com/speechcoach/pipeline/worker"
)

const StageClip = "clip"

// captionGap is the max silence between words merged into one caption line.
const captionGap = 0.5

type ClipRequest struct {
	SessionID     string  `json:"session_id"`
	ClipID        string  `json:"clip_id"`
	VideoURL      string  `json:"video_url"`
	Start         float64 `json:"start"`
	End           float64 `json:"end"`
	WithCaptions  bool    `json:"with_captions"`
	WithThumbnail bool    `json:"with_thumbnail"`
}

func (r *ClipRequest) Session() string { return r.SessionID }

func (r *ClipRequest) Validate() error {
	if r.SessionID == "" {
		return errors.New("session_id is required")
	}
	if r.ClipID == "" {
		return errors.New("clip_id is required")
	}
	if r.VideoURL == "" {
		return errors.New("video_url is required")
	}
	if r.End <= r.Start {
		return fmt.Errorf("end (%g) must be after start (%g)", r.End, r.Start)
	}
	return nil
}

// ClipStage cuts a highlight out of the session recording and uploads it.
// Captions come from the transcript artifact when requested and available;
// a missing transcript just yields an uncaptioned clip.
type ClipStage struct {
	transcoder *engines.Transcoder
	objects    *engines.ObjectStore
	store      artifact.Store
	now        func() time.Time
}

func NewClipStage(transcoder *engines.Transcoder, objects *engines.ObjectStore, store artifact.Store) *ClipStage {
	return &ClipStage{transcoder: transcoder, objects: objects, store: store, now: time.Now}
}

func (s *ClipStage) Name() string              { return StageClip }
func (s *ClipStage) ArtifactKey() artifact.Key { return artifact.KeyClip }

func (s *ClipStage) Run(ctx context.Context, req worker.Request) (any, error) {
	r, ok := req.(*ClipRequest)
	if !ok {
		return nil, fmt.Errorf("clip: unexpected request type %T", req)
	}

	var captions []artifact.Caption
	if r.WithCaptions {
		var transcript artifact.Transcript
		switch err := s.store.Get(ctx, r.SessionID, artifact.KeyTranscript, &transcript); {
		case err == nil:
			captions = buildCaptions(transcript.Words, r.Start, r.End)
		case errors.Is(err, artifact.ErrNotFound):
			// no transcript, clip stays uncaptioned
		default:
			return nil, fmt.Errorf("load transcript: %w", err)
		}
	}

	clipPath, err := s.transcoder.Clip(ctx, r.VideoURL, r.Start, r.End, captions)
	if err != nil {
		return nil, err
	}
	defer os.Remove(clipPath)

	clipKey := fmt.Sprintf("clips/%s/%s.mp4", r.SessionID, r.ClipID)
	clipURL, err := s.objects.Upload(ctx, clipPath, clipKey)
	if err != nil {
		return nil, err
	}

	result := &artifact.ClipResult{
		ClipID:    r.ClipID,
		SessionID: r.SessionID,
		URL:       clipURL,
		Start:     r.Start,
		End:       r.End,
		Duration:  r.End - r.Start,
		Captions:  captions,
		CreatedAt: s.now(),
	}

	if r.WithThumbnail {
		thumbPath, err := s.transcoder.Thumbnail(ctx, r.VideoURL, r.Start)
		if err != nil {
			return nil, err
		}
		defer os.Remove(thumbPath)

		thumbKey := fmt.Sprintf("clips/%s/%s_thumb.jpg", r.SessionID, r.ClipID)
		result.ThumbnailURL, err = s.objects.Upload(ctx, thumbPath, thumbKey)
		if err != nil {
			return nil, err
		}
	}

	return result, nil
}

// buildCaptions groups the words falling inside [start,end] into caption
// lines, breaking on pauses longer than captionGap. Times are rebased so the
// clip starts at zero.
func buildCaptions(words []artifact.Word, start, end float64) []artifact.Caption {
	var inRange []artifact.Word
	for _, w := range words {
		if w.Start >= start && w.End <= end {
			inRange = append(inRange, w)
		}
	}
	if len(inRange) == 0 {
		return nil
	}

	var captions []artifact.Caption
	groupStart := inRange[0].Start
	groupEnd := inRange[0].End
	texts := []string{inRange[0].Word}

	flush := func() {
		captions = append(captions, artifact.Caption{
			Start: groupStart - start,
			End:   groupEnd - start,
			Text:  strings.Join(texts, " "),
		})
	}

	for _, w := range inRange[1:] {
		if w.Start-groupEnd > captionGap {
			flush()
			groupStart = w.Start
			texts = texts[:0]
		}
		groupEnd = w.End
		texts = append(texts, w.Word)
	}
	flush()
	return captions
}
