package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/abdulachik/promptgym/internal/align"
	"github.com/abdulachik/promptgym/internal/config"
	"github.com/abdulachik/promptgym/internal/db"
	"github.com/abdulachik/promptgym/internal/gemini"
	"github.com/abdulachik/promptgym/internal/imaging"
	"github.com/abdulachik/promptgym/internal/session"
)

var playCmd = &cobra.Command{
	Use:   "play",
	Short: "Play a round interactively",
	Long: `Run one round of the gym in the terminal: pick a difficulty (or bring
your own image with --image), study the generated reference image, then write
a prompt that tries to reproduce it. Your prompt is rendered and scored, and
the feedback is shown with matched phrases highlighted by category.

Generated images are written to OUTPUT_DIR (default: out).`,
	RunE: runPlay,
}

var (
	playDifficulty string
	playImagePath  string
)

func init() {
	playCmd.Flags().StringVarP(&playDifficulty, "difficulty", "d", "", "difficulty tier (default: choose interactively)")
	playCmd.Flags().StringVarP(&playImagePath, "image", "i", "", "path to an image to describe and reproduce instead of a generated challenge")
	rootCmd.AddCommand(playCmd)
}

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF"))
	scoreStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#4CAF50"))
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#999999"))

	categoryStyles = map[align.Category]lipgloss.Style{
		align.CategorySubject:     lipgloss.NewStyle().Foreground(lipgloss.Color("#5B8DEF")).Bold(true),
		align.CategoryStyle:       lipgloss.NewStyle().Foreground(lipgloss.Color("#B388FF")).Bold(true),
		align.CategoryComposition: lipgloss.NewStyle().Foreground(lipgloss.Color("#F7B801")).Bold(true),
		align.CategorySetting:     lipgloss.NewStyle().Foreground(lipgloss.Color("#4CAF50")).Bold(true),
		align.CategoryColor:       lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true),
		align.CategoryAction:      lipgloss.NewStyle().Foreground(lipgloss.Color("#26C6DA")).Bold(true),
		align.CategoryDetail:      lipgloss.NewStyle().Foreground(lipgloss.Color("#FFA726")).Bold(true),
		align.CategoryOther:       lipgloss.NewStyle().Foreground(lipgloss.Color("#CCCCCC")).Bold(true),
	}
)

func runPlay(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := cfg.ValidateForPlay(); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}

	store, err := db.NewStore(ctx, cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer store.Close()

	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	gen, err := gemini.NewClient(ctx, gemini.Config{
		APIKey:     cfg.GeminiAPIKey,
		TextModel:  cfg.GeminiTextModel,
		ImageModel: cfg.GeminiImageModel,
	})
	if err != nil {
		return fmt.Errorf("create Gemini client: %w", err)
	}

	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	eng := session.NewEngine(session.Config{Generator: gen})
	in := bufio.NewReader(os.Stdin)

	for {
		if err := playRound(ctx, cfg, eng, store, in); err != nil {
			return err
		}

		fmt.Print("\nPlay again? [y/N] ")
		answer, _ := in.ReadString('\n')
		if !strings.EqualFold(strings.TrimSpace(answer), "y") {
			return nil
		}
		eng.Reset()
		fmt.Println()
	}
}

// playRound runs one challenge. Engine failures are never fatal: the engine
// has already returned to selection with an error message, so the failure is
// printed and nil is returned to keep the play loop alive. Error returns are
// reserved for local problems (bad image path, stdin gone).
func playRound(ctx context.Context, cfg *config.Config, eng *session.Engine, store *db.Store, in *bufio.Reader) error {
	if playImagePath != "" {
		img, err := imaging.ReadFile(playImagePath)
		if err != nil {
			return fmt.Errorf("read image: %w", err)
		}
		fmt.Println(dimStyle.Render("Describing your image..."))
		if err := startWithTimeout(ctx, cfg, func(c context.Context) error {
			return eng.StartFromImage(c, img)
		}); err != nil {
			printRoundFailure(eng, err)
			return nil
		}
	} else {
		difficulty := playDifficulty
		if difficulty == "" {
			var err error
			difficulty, err = chooseDifficulty(in)
			if err != nil {
				return err
			}
		}
		fmt.Println(dimStyle.Render("Generating challenge..."))
		if err := startWithTimeout(ctx, cfg, func(c context.Context) error {
			return eng.StartChallenge(c, difficulty)
		}); err != nil {
			printRoundFailure(eng, err)
			return nil
		}
	}

	sess := eng.Snapshot()
	if !sess.ReferenceImage.IsZero() {
		path, err := writeImage(cfg.OutputDir, "reference", sess.ReferenceImage)
		if err != nil {
			slog.Warn("failed to write reference image", "error", err)
		} else {
			fmt.Println(dimStyle.Render("Reference image: " + path))
		}
	}

	fmt.Println()
	fmt.Println(titleStyle.Render("=== Target ==="))
	fmt.Println(sess.TargetDescription)
	fmt.Println()
	fmt.Print("Your prompt: ")

	prompt, err := in.ReadString('\n')
	if err != nil {
		return fmt.Errorf("read prompt: %w", err)
	}
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		fmt.Println(errStyle.Render("Empty prompt, round abandoned."))
		eng.Reset()
		return nil
	}

	// The timeout budget starts here, after the user has finished typing:
	// it bounds the backend call sequence, not the thinking time.
	fmt.Println(dimStyle.Render("Generating and scoring..."))
	if err := startWithTimeout(ctx, cfg, func(c context.Context) error {
		return eng.SubmitPrompt(c, prompt)
	}); err != nil {
		printRoundFailure(eng, err)
		return nil
	}

	sess = eng.Snapshot()
	if !sess.UserImage.IsZero() {
		path, err := writeImage(cfg.OutputDir, "attempt", sess.UserImage)
		if err != nil {
			slog.Warn("failed to write attempt image", "error", err)
		} else {
			fmt.Println(dimStyle.Render("Your image: " + path))
		}
	}

	printResults(sess)
	saveAttempt(ctx, store, sess)
	return nil
}

// startWithTimeout runs one engine transition under a fresh RequestTimeout
// context.
func startWithTimeout(ctx context.Context, cfg *config.Config, call func(context.Context) error) error {
	callCtx, cancel := context.WithTimeout(ctx, cfg.RequestTimeout)
	defer cancel()
	return call(callCtx)
}

func printRoundFailure(eng *session.Engine, err error) {
	msg := eng.Snapshot().ErrorMessage
	if msg == "" {
		msg = err.Error()
	}
	fmt.Println(errStyle.Render("Round failed: " + msg))
}

func chooseDifficulty(in *bufio.Reader) (string, error) {
	names := gemini.TierNames()

	fmt.Println(titleStyle.Render("=== Difficulty ==="))
	for i, name := range names {
		fmt.Printf("  %d. %s\n", i+1, name)
	}
	fmt.Print("Choose [1]: ")

	line, err := in.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("read choice: %w", err)
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return names[0], nil
	}

	n, err := strconv.Atoi(line)
	if err != nil || n < 1 || n > len(names) {
		return "", fmt.Errorf("invalid choice %q", line)
	}
	return names[n-1], nil
}

func printResults(sess session.Session) {
	fmt.Println()
	fmt.Println(titleStyle.Render("=== Results ==="))
	fmt.Println(scoreStyle.Render(fmt.Sprintf("Score: %d / 100", sess.Score)))
	fmt.Println()

	fmt.Println(titleStyle.Render("Target:"))
	fmt.Println(renderAligned(sess.TargetDescription, sess.Feedback, align.SideTarget))
	fmt.Println()
	fmt.Println(titleStyle.Render("Your prompt:"))
	fmt.Println(renderAligned(sess.UserPrompt, sess.Feedback, align.SideUser))

	if len(sess.Feedback) > 0 {
		fmt.Println()
		fmt.Println(titleStyle.Render("Feedback:"))
		for _, item := range sess.Feedback {
			style := categoryStyle(item.Category())
			fmt.Printf("  %s %s\n", style.Render("["+item.Parameter+"]"), item.Feedback)
		}
	}
}

// renderAligned colors the phrases the scorer matched, each by the category
// of its feedback item. Unmatched text passes through untouched.
func renderAligned(text string, items []align.FeedbackItem, side align.Side) string {
	segs := align.Segments(text, align.Align(text, items, side))

	var b strings.Builder
	for _, seg := range segs {
		if seg.Highlighted() {
			b.WriteString(categoryStyle(seg.Item.Category()).Render(seg.Text))
		} else {
			b.WriteString(seg.Text)
		}
	}
	return b.String()
}

func categoryStyle(c align.Category) lipgloss.Style {
	if style, ok := categoryStyles[c]; ok {
		return style
	}
	return categoryStyles[align.CategoryOther]
}

func writeImage(dir, prefix string, img imaging.Image) (string, error) {
	name := fmt.Sprintf("%s-%s%s", prefix, time.Now().Format("20060102-150405"), img.Ext())
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, img.Data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

func saveAttempt(ctx context.Context, store *db.Store, sess session.Session) {
	kind := db.KindChallenge
	if sess.Difficulty == "custom" {
		kind = db.KindUpload
	}

	_, err := store.SaveAttempt(ctx, db.Attempt{
		Kind:              kind,
		Difficulty:        sess.Difficulty,
		TargetDescription: sess.TargetDescription,
		UserPrompt:        sess.UserPrompt,
		Score:             sess.Score,
		Feedback:          sess.Feedback,
		ReferenceImage:    sess.ReferenceImage,
		UserImage:         sess.UserImage,
	})
	if err != nil {
		slog.Warn("failed to save attempt", "error", err)
	}
}
