package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/abdulachik/promptgym/internal/config"
	"github.com/abdulachik/promptgym/internal/gemini"
	"github.com/abdulachik/promptgym/internal/imaging"
	"github.com/spf13/cobra"
)

var describeCmd = &cobra.Command{
	Use:   "describe [image]",
	Short: "Describe an image with Gemini",
	Long: `Analyze an image file and print the structured description the gym
would use as the target for an upload round.

Example:
  promptgym describe photo.jpg`,
	Args: cobra.ExactArgs(1),
	RunE: runDescribe,
}

var describeJSON bool

func init() {
	describeCmd.Flags().BoolVar(&describeJSON, "json", false, "print the raw JSON description")
	rootCmd.AddCommand(describeCmd)
}

func runDescribe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := cfg.ValidateForGemini(); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}

	img, err := imaging.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read image: %w", err)
	}

	width, height, err := img.Dimensions()
	if err != nil {
		return fmt.Errorf("decode image: %w", err)
	}

	gen, err := gemini.NewClient(ctx, gemini.Config{
		APIKey:     cfg.GeminiAPIKey,
		TextModel:  cfg.GeminiTextModel,
		ImageModel: cfg.GeminiImageModel,
	})
	if err != nil {
		return fmt.Errorf("create Gemini client: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, cfg.RequestTimeout)
	defer cancel()

	desc, err := gen.DescribeImage(callCtx, img, width, height)
	if err != nil {
		return fmt.Errorf("describe image: %w", err)
	}

	if describeJSON {
		out, err := json.MarshalIndent(desc, "", "  ")
		if err != nil {
			return fmt.Errorf("encode description: %w", err)
		}
		fmt.Println(string(out))
		return nil
	}

	fmt.Println(desc.Description)
	if desc.Subject != "" {
		fmt.Printf("\nSubject: %s\n", desc.Subject)
	}
	if desc.Style != "" {
		fmt.Printf("Style:   %s\n", desc.Style)
	}
	if desc.Setting != "" {
		fmt.Printf("Setting: %s\n", desc.Setting)
	}
	if desc.Mood != "" {
		fmt.Printf("Mood:    %s\n", desc.Mood)
	}

	return nil
}
