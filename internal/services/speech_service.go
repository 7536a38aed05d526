package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/jdkato/prose/v2"

	"reader-gateway/internal/models"
	"reader-gateway/internal/repositories"
)

const (
	// DefaultSegmentBudget caps the character length of one synthesis
	// request. Longer passages are split at sentence boundaries.
	DefaultSegmentBudget = 600

	// audioCacheTTL bounds how long synthesized clips stay cached.
	audioCacheTTL = 24 * time.Hour

	audioMediaType = "audio/mpeg"
)

// SpeechSynthesizer is the slice of the assistant client the speech pipeline
// needs.
type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, text, voice string) ([]byte, error)
}

// AudioClip is one synthesized segment in reading order. Audio is emitted as
// base64 in JSON.
type AudioClip struct {
	Text      string `json:"text"`
	Audio     []byte `json:"audio"`
	MediaType string `json:"media_type"`
	Cached    bool   `json:"cached"`
}

// SpeechService converts passage text into ordered audio clips, splitting
// long passages at sentence boundaries and caching synthesized segments.
type SpeechService struct {
	client        SpeechSynthesizer
	cache         repositories.AudioCache
	segmentBudget int
	logger        *log.Logger
}

// NewSpeechService creates a speech service. The cache may be nil, in which
// case every segment goes to the backend.
func NewSpeechService(client SpeechSynthesizer, cache repositories.AudioCache, logger *log.Logger) *SpeechService {
	if logger == nil {
		logger = log.Default()
	}
	return &SpeechService{
		client:        client,
		cache:         cache,
		segmentBudget: DefaultSegmentBudget,
		logger:        logger,
	}
}

// Synthesize turns text into ordered audio clips. The context is checked
// between segments, so stopping playback in the UI aborts the remaining
// synthesis work.
func (s *SpeechService) Synthesize(ctx context.Context, text, voice string) ([]AudioClip, error) {
	text = normalizeWhitespace(text)
	if text == "" {
		return nil, &models.ValidationError{Field: "text", Message: "text to read is required"}
	}

	segments, err := s.segment(text)
	if err != nil {
		return nil, err
	}

	clips := make([]AudioClip, 0, len(segments))
	for i, seg := range segments {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		key := audioCacheKey(voice, seg)
		if cached := s.lookupCache(ctx, key); cached != nil {
			clips = append(clips, AudioClip{Text: seg, Audio: cached, MediaType: audioMediaType, Cached: true})
			continue
		}

		audio, err := s.client.Synthesize(ctx, seg, voice)
		if err != nil {
			return nil, fmt.Errorf("synthesis failed at segment %d/%d: %w", i+1, len(segments), err)
		}
		s.storeCache(ctx, key, audio)
		clips = append(clips, AudioClip{Text: seg, Audio: audio, MediaType: audioMediaType})
	}

	s.logger.Printf("✅ Synthesized %d segment(s), %d from cache", len(clips), countCached(clips))
	return clips, nil
}

// segment splits text into chunks no longer than the budget, cutting only at
// sentence boundaries. A single sentence longer than the budget stays whole
// rather than being cut mid-sentence.
func (s *SpeechService) segment(text string) ([]string, error) {
	if len(text) <= s.segmentBudget {
		return []string{text}, nil
	}

	doc, err := prose.NewDocument(text, prose.WithTagging(false), prose.WithExtraction(false))
	if err != nil {
		return nil, fmt.Errorf("failed to segment text: %w", err)
	}

	var segments []string
	var current strings.Builder
	for _, sent := range doc.Sentences() {
		st := strings.TrimSpace(sent.Text)
		if st == "" {
			continue
		}
		if current.Len() > 0 && current.Len()+1+len(st) > s.segmentBudget {
			segments = append(segments, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteByte(' ')
		}
		current.WriteString(st)
	}
	if current.Len() > 0 {
		segments = append(segments, current.String())
	}

	return segments, nil
}

func (s *SpeechService) lookupCache(ctx context.Context, key string) []byte {
	if s.cache == nil {
		return nil
	}
	data, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logger.Printf("⚠️  Audio cache read failed: %v", err)
		return nil
	}
	return data
}

func (s *SpeechService) storeCache(ctx context.Context, key string, audio []byte) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, key, audio, audioCacheTTL); err != nil {
		s.logger.Printf("⚠️  Audio cache write failed: %v", err)
	}
}

// audioCacheKey digests voice and segment text into a cache key.
func audioCacheKey(voice, text string) string {
	sum := sha256.Sum256([]byte(voice + "\x00" + text))
	return hex.EncodeToString(sum[:])
}

// normalizeWhitespace collapses whitespace runs into single spaces.
func normalizeWhitespace(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

func countCached(clips []AudioClip) int {
	n := 0
	for _, c := range clips {
		if c.Cached {
			n++
		}
	}
	return n
}
