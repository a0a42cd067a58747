package model

import (
	"fmt"
	"strings"
)

// SegmentKind identifies how a segment is materialized.
type SegmentKind string

const (
	SegmentSingle                SegmentKind = "single"
	SegmentRecording             SegmentKind = "recording"
	SegmentQuestionIntro         SegmentKind = "question_intro"
	SegmentPause                 SegmentKind = "pause"
	SegmentQuestionTransition    SegmentKind = "question_transition"
	SegmentSilence               SegmentKind = "silence"
	SegmentCombineWithBackground SegmentKind = "combine_with_background"
)

// SegmentRole marks a segment's structural position in the final program.
// Roles decide which segments stay outside the background-music bed. When no
// roles are supplied the assembler falls back to the positional convention
// (first segment opens, last segment closes).
type SegmentRole string

const (
	RoleBody    SegmentRole = ""        // default: covered by background music
	RoleOpening SegmentRole = "opening" // opening jingle, no background underneath
	RoleClosing SegmentRole = "closing" // closing asset, appended after the mix
)

// Segment is one logical unit of the program, supplied pre-ordered by the
// caller. Identity is the position in the array; segments are immutable once
// submitted.
type Segment struct {
	Kind            SegmentKind `json:"kind"`
	Role            SegmentRole `json:"role,omitempty"`
	SourceURL       string      `json:"sourceUrl,omitempty"`       // single/recording
	DurationSeconds float64     `json:"durationSeconds,omitempty"` // silence-like kinds
	AnswerURLs      []string    `json:"answerUrls,omitempty"`      // combine_with_background
	BackgroundURL   string      `json:"backgroundUrl,omitempty"`   // combine_with_background (mixed globally later)
	QuestionID      string      `json:"questionId,omitempty"`
}

// Validate rejects malformed segments before a job is created.
func (s *Segment) Validate(index int) error {
	switch s.Kind {
	case SegmentSingle, SegmentRecording:
		if strings.TrimSpace(s.SourceURL) == "" {
			return fmt.Errorf("segment %d (%s): sourceUrl is required", index, s.Kind)
		}
	case SegmentCombineWithBackground:
		if len(s.AnswerURLs) == 0 {
			return fmt.Errorf("segment %d (%s): answerUrls must not be empty", index, s.Kind)
		}
		for i, u := range s.AnswerURLs {
			if strings.TrimSpace(u) == "" {
				return fmt.Errorf("segment %d: answerUrls[%d] is empty", index, i)
			}
		}
	case SegmentQuestionIntro, SegmentPause, SegmentQuestionTransition, SegmentSilence:
		if s.DurationSeconds < 0 {
			return fmt.Errorf("segment %d (%s): negative durationSeconds", index, s.Kind)
		}
	default:
		return fmt.Errorf("segment %d: unknown kind %q", index, s.Kind)
	}
	return nil
}

// MaterializedKind collapses the input kinds after materialization.
type MaterializedKind string

const (
	MaterializedSingle  MaterializedKind = "single"
	MaterializedAnswers MaterializedKind = "answers"
)

// MaterializedSegment is a segment resolved to a local audio file.
// Invariant: for a materialized list m, m[i].OriginalIndex == i.
type MaterializedSegment struct {
	LocalPath     string
	Kind          MaterializedKind
	Role          SegmentRole
	QuestionID    string
	OriginalIndex int
	IsRecording   bool // user content; the normalizer only touches these
	IsSystemVoice bool // authored speech; the analyzer averages these for the target level
}

// GenerationKey is the unit of mutual exclusion and manifest scoping.
type GenerationKey struct {
	Language string `json:"language"`
	World    string `json:"world"`
	OwnerID  string `json:"ownerId"`
	Variant  string `json:"variant"` // "kids" or "parent"
}

// String renders the key in its canonical lock/manifest form.
func (k GenerationKey) String() string {
	return fmt.Sprintf("%s:%s:%s:%s", k.World, k.OwnerID, k.Language, k.Variant)
}

// Validate rejects keys with missing parts.
func (k GenerationKey) Validate() error {
	if k.Language == "" || k.World == "" || k.OwnerID == "" || k.Variant == "" {
		return fmt.Errorf("generation key incomplete: %q", k.String())
	}
	return nil
}
