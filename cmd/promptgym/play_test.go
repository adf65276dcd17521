package main

import (
	"bufio"
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abdulachik/promptgym/internal/align"
	"github.com/abdulachik/promptgym/internal/config"
	"github.com/abdulachik/promptgym/internal/db"
	"github.com/abdulachik/promptgym/internal/imaging"
	"github.com/abdulachik/promptgym/internal/session"
)

type fakeBackend struct {
	challengeErr error
	generateErr  error
	callCtxErrs  []error
}

func (f *fakeBackend) CreateChallenge(ctx context.Context, difficulty string) (*session.Challenge, error) {
	f.callCtxErrs = append(f.callCtxErrs, ctx.Err())
	if f.challengeErr != nil {
		return nil, f.challengeErr
	}
	return &session.Challenge{
		TargetDescription: "a red fox in a dark forest",
		Image:             imaging.Image{Data: []byte("ref"), MIMEType: "image/png"},
	}, nil
}

func (f *fakeBackend) DescribeImage(ctx context.Context, _ imaging.Image, _, _ int) (*session.Description, error) {
	f.callCtxErrs = append(f.callCtxErrs, ctx.Err())
	return &session.Description{Description: "an uploaded scene"}, nil
}

func (f *fakeBackend) GenerateImage(ctx context.Context, _ string) (imaging.Image, error) {
	f.callCtxErrs = append(f.callCtxErrs, ctx.Err())
	if f.generateErr != nil {
		return imaging.Image{}, f.generateErr
	}
	return imaging.Image{Data: []byte("user"), MIMEType: "image/png"}, nil
}

func (f *fakeBackend) ScoreAttempt(ctx context.Context, _, _ imaging.Image, _, _ string) (*session.Evaluation, error) {
	f.callCtxErrs = append(f.callCtxErrs, ctx.Err())
	return &session.Evaluation{
		Score: 70,
		Items: []align.FeedbackItem{
			{Parameter: "color", TargetPhrase: "red fox", UserPhrase: "fox", Feedback: "say red"},
		},
	}, nil
}

// slowReader delays its first read, standing in for a user who takes a
// while to type.
type slowReader struct {
	r     io.Reader
	delay time.Duration
	once  bool
}

func (s *slowReader) Read(p []byte) (int, error) {
	if !s.once {
		s.once = true
		time.Sleep(s.delay)
	}
	return s.r.Read(p)
}

func playConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		OutputDir:      t.TempDir(),
		RequestTimeout: time.Minute,
	}
}

func playStore(t *testing.T) *db.Store {
	t.Helper()
	ctx := context.Background()
	store, err := db.NewStore(ctx, filepath.Join(t.TempDir(), "play.db"))
	require.NoError(t, err)
	require.NoError(t, store.Migrate(ctx))
	t.Cleanup(func() { store.Close() })
	return store
}

func withDifficultyFlag(t *testing.T, difficulty string) {
	t.Helper()
	prev := playDifficulty
	playDifficulty = difficulty
	t.Cleanup(func() { playDifficulty = prev })
}

func TestPlayRound_ChallengeFailureKeepsLoopAlive(t *testing.T) {
	withDifficultyFlag(t, "Object Clarity")
	gen := &fakeBackend{challengeErr: errors.New("backend down")}
	eng := session.NewEngine(session.Config{Generator: gen})
	in := bufio.NewReader(strings.NewReader(""))

	err := playRound(context.Background(), playConfig(t), eng, playStore(t), in)
	require.NoError(t, err, "a backend failure must not end the play loop")

	sess := eng.Snapshot()
	assert.Equal(t, session.PhaseSelection, sess.Phase)
	assert.NotEmpty(t, sess.ErrorMessage)
}

func TestPlayRound_SubmitFailureKeepsLoopAlive(t *testing.T) {
	withDifficultyFlag(t, "Object Clarity")
	gen := &fakeBackend{generateErr: errors.New("render failed")}
	eng := session.NewEngine(session.Config{Generator: gen})
	in := bufio.NewReader(strings.NewReader("a fox in the woods\n"))

	err := playRound(context.Background(), playConfig(t), eng, playStore(t), in)
	require.NoError(t, err)

	sess := eng.Snapshot()
	assert.Equal(t, session.PhaseSelection, sess.Phase)
	assert.NotEmpty(t, sess.ErrorMessage)
}

func TestPlayRound_ThinkingTimeDoesNotConsumeTimeout(t *testing.T) {
	withDifficultyFlag(t, "Object Clarity")
	gen := &fakeBackend{}
	eng := session.NewEngine(session.Config{Generator: gen})

	cfg := playConfig(t)
	cfg.RequestTimeout = 50 * time.Millisecond

	// The user "types" for well past the timeout budget.
	in := bufio.NewReader(&slowReader{
		r:     strings.NewReader("a fox in the woods\n"),
		delay: 150 * time.Millisecond,
	})

	err := playRound(context.Background(), cfg, eng, playStore(t), in)
	require.NoError(t, err)

	sess := eng.Snapshot()
	assert.Equal(t, session.PhaseResults, sess.Phase, "session: %+v", sess)

	// Every backend call saw a live context: the timeout budget is per
	// call, not per round.
	require.Len(t, gen.callCtxErrs, 3)
	for i, ctxErr := range gen.callCtxErrs {
		assert.NoError(t, ctxErr, "backend call %d started with an expired context", i)
	}
}

func TestPlayRound_SavesAttempt(t *testing.T) {
	withDifficultyFlag(t, "Object Clarity")
	gen := &fakeBackend{}
	eng := session.NewEngine(session.Config{Generator: gen})
	store := playStore(t)
	in := bufio.NewReader(strings.NewReader("a fox in the woods\n"))

	err := playRound(context.Background(), playConfig(t), eng, store, in)
	require.NoError(t, err)

	count, err := store.CountAttempts(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}
