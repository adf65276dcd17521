// Package session drives one prompt-training challenge through its
// lifecycle: pick a difficulty or upload an image, write a prompt, have the
// generation backend render and score it, show results.
package session

import (
	"context"

	"github.com/abdulachik/promptgym/internal/align"
	"github.com/abdulachik/promptgym/internal/imaging"
)

// Phase is the current stage of a challenge's lifecycle.
type Phase string

const (
	PhaseSelection Phase = "selection"
	PhaseLoading   Phase = "loading"
	PhasePrompting Phase = "prompting"
	PhaseResults   Phase = "results"
)

// Challenge is a reference image plus the description the user tries to
// reproduce.
type Challenge struct {
	TargetDescription string
	Image             imaging.Image
}

// Description is the structured read of an uploaded image. Only Description
// is guaranteed; the backend may fall back to free text when its structured
// response does not parse.
type Description struct {
	Description string `json:"description"`
	Subject     string `json:"subject,omitempty"`
	Style       string `json:"style,omitempty"`
	Setting     string `json:"setting,omitempty"`
	Mood        string `json:"mood,omitempty"`
}

// Evaluation is the scored comparison of an attempt against its target.
type Evaluation struct {
	Score int                  `json:"score"`
	Items []align.FeedbackItem `json:"analysis"`
}

// Generator is the external generation and scoring backend. All calls block
// until the backend settles and any of them may fail.
type Generator interface {
	CreateChallenge(ctx context.Context, difficulty string) (*Challenge, error)
	DescribeImage(ctx context.Context, img imaging.Image, width, height int) (*Description, error)
	GenerateImage(ctx context.Context, prompt string) (imaging.Image, error)
	ScoreAttempt(ctx context.Context, reference, attempt imaging.Image, targetDescription, userPrompt string) (*Evaluation, error)
}

// Session is the state of one challenge. It is owned by the Engine; callers
// only ever see copies.
type Session struct {
	// ID identifies the current challenge. It changes whenever the session
	// starts over, so a slow backend call can detect that its result is for
	// a challenge that no longer exists.
	ID string

	Phase      Phase
	Difficulty string

	ReferenceImage    imaging.Image
	TargetDescription string

	UserPrompt string
	UserImage  imaging.Image

	// Score and Feedback are meaningful only in PhaseResults.
	Score    int
	Feedback []align.FeedbackItem

	// ErrorMessage holds the last failure, cleared when a new transition
	// starts.
	ErrorMessage string
}
