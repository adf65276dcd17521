package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/abdulachik/promptgym/internal/align"
	"github.com/abdulachik/promptgym/internal/imaging"
)

var (
	// ErrBusy is returned when a transition is requested while a backend
	// call is already in flight.
	ErrBusy = errors.New("an operation is already in flight")

	// ErrWrongPhase is returned when a transition is not available from the
	// session's current phase.
	ErrWrongPhase = errors.New("transition not available in current phase")

	// ErrStale is returned when a backend call settled after the session
	// had already moved on. The session was not touched.
	ErrStale = errors.New("result arrived for a superseded challenge")
)

// Engine owns a single Session and sequences its transitions. Backend calls
// run without the lock held; results are committed only if the session has
// not moved on in the meantime (Reset bumps the challenge ID, so a slow
// call's result for an abandoned challenge is discarded).
type Engine struct {
	mu   sync.Mutex
	gen  Generator
	sess Session
}

// Config holds engine dependencies.
type Config struct {
	Generator Generator
}

// NewEngine creates an engine in the selection phase.
func NewEngine(cfg Config) *Engine {
	return &Engine{
		gen: cfg.Generator,
		sess: Session{
			ID:    uuid.NewString(),
			Phase: PhaseSelection,
		},
	}
}

// Snapshot returns a copy of the current session state.
func (e *Engine) Snapshot() Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.copyLocked()
}

func (e *Engine) copyLocked() Session {
	s := e.sess
	if s.Feedback != nil {
		s.Feedback = append([]align.FeedbackItem(nil), s.Feedback...)
	}
	return s
}

// StartChallenge asks the backend for a fresh challenge at the named
// difficulty tier. On success the session is in the prompting phase; on
// failure it is back in selection with ErrorMessage set and no partial
// challenge state.
func (e *Engine) StartChallenge(ctx context.Context, difficulty string) error {
	id, err := e.beginLoading(PhaseSelection)
	if err != nil {
		return err
	}

	ch, err := e.gen.CreateChallenge(ctx, difficulty)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sess.ID != id {
		return ErrStale
	}
	if err != nil {
		e.failLocked(fmt.Sprintf("failed to generate challenge: %v", err))
		return err
	}

	e.sess.Phase = PhasePrompting
	e.sess.Difficulty = difficulty
	e.sess.ReferenceImage = ch.Image
	e.sess.TargetDescription = ch.TargetDescription
	slog.Info("challenge ready", "difficulty", difficulty, "challenge_id", id)
	return nil
}

// StartFromImage derives a challenge from an uploaded image: the image
// becomes the reference and the backend's description of it becomes the
// target description.
func (e *Engine) StartFromImage(ctx context.Context, img imaging.Image) error {
	id, err := e.beginLoading(PhaseSelection)
	if err != nil {
		return err
	}

	desc, derr := e.describeUpload(ctx, img)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sess.ID != id {
		return ErrStale
	}
	if derr != nil {
		e.failLocked(fmt.Sprintf("failed to process uploaded image: %v", derr))
		return derr
	}

	e.sess.Phase = PhasePrompting
	e.sess.Difficulty = "custom"
	e.sess.ReferenceImage = img
	e.sess.TargetDescription = desc
	slog.Info("uploaded challenge ready", "challenge_id", id)
	return nil
}

// describeUpload probes dimensions locally before the dimension-dependent
// backend call.
func (e *Engine) describeUpload(ctx context.Context, img imaging.Image) (string, error) {
	width, height, err := img.Dimensions()
	if err != nil {
		return "", err
	}

	desc, err := e.gen.DescribeImage(ctx, img, width, height)
	if err != nil {
		return "", err
	}
	if desc.Description == "" {
		return "A detailed image.", nil
	}
	return desc.Description, nil
}

// SubmitPrompt renders the user's prompt and scores it against the
// reference. The two backend calls run strictly in sequence: scoring needs
// the generated image. Any failure returns the session to selection; the
// partially generated user image is discarded rather than kept for a retry.
func (e *Engine) SubmitPrompt(ctx context.Context, prompt string) error {
	id, err := e.beginLoading(PhasePrompting)
	if err != nil {
		return err
	}

	e.mu.Lock()
	if e.sess.ID != id {
		e.mu.Unlock()
		return ErrStale
	}
	e.sess.UserPrompt = prompt
	reference := e.sess.ReferenceImage
	target := e.sess.TargetDescription
	e.mu.Unlock()

	userImg, genErr := e.gen.GenerateImage(ctx, prompt)

	var eval *Evaluation
	var scoreErr error
	if genErr == nil {
		eval, scoreErr = e.gen.ScoreAttempt(ctx, reference, userImg, target, prompt)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sess.ID != id {
		return ErrStale
	}
	if genErr != nil {
		e.failLocked(fmt.Sprintf("failed to render your prompt: %v", genErr))
		return genErr
	}
	if scoreErr != nil {
		e.failLocked(fmt.Sprintf("failed to score your attempt: %v", scoreErr))
		return scoreErr
	}

	e.sess.Phase = PhaseResults
	e.sess.UserImage = userImg
	e.sess.Score = clampScore(eval.Score)
	e.sess.Feedback = append([]align.FeedbackItem(nil), eval.Items...)
	slog.Info("attempt scored", "score", e.sess.Score, "feedback_items", len(e.sess.Feedback), "challenge_id", id)
	return nil
}

// Reset abandons the current challenge and returns to selection with every
// field cleared. A backend call still in flight will find the session ID
// changed and discard its result.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.resetLocked("")
}

// beginLoading validates the transition and moves the session into the
// loading phase, returning the challenge ID the eventual result must match.
func (e *Engine) beginLoading(from Phase) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.sess.Phase == PhaseLoading {
		return "", ErrBusy
	}
	if e.sess.Phase != from {
		return "", fmt.Errorf("%w: have %s, need %s", ErrWrongPhase, e.sess.Phase, from)
	}

	e.sess.ErrorMessage = ""
	e.sess.Phase = PhaseLoading
	return e.sess.ID, nil
}

// failLocked returns to selection with an error message. Challenge state is
// dropped entirely so nothing partial or stale can be rendered.
func (e *Engine) failLocked(msg string) {
	slog.Warn("challenge failed", "error", msg, "challenge_id", e.sess.ID)
	e.resetLocked(msg)
}

func (e *Engine) resetLocked(errMsg string) {
	e.sess = Session{
		ID:           uuid.NewString(),
		Phase:        PhaseSelection,
		ErrorMessage: errMsg,
	}
}

func clampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
