// Package gemini implements the generation and scoring backend on the
// Gemini API.
package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"google.golang.org/genai"

	"github.com/abdulachik/promptgym/internal/imaging"
	"github.com/abdulachik/promptgym/internal/session"
)

const (
	defaultTextModel  = "gemini-2.5-flash"
	defaultImageModel = "gemini-2.5-flash-image-preview"
)

// Client talks to the Gemini API. It implements session.Generator.
type Client struct {
	client     *genai.Client
	textModel  string
	imageModel string
}

// Config holds configuration for the Gemini client.
type Config struct {
	APIKey     string
	TextModel  string
	ImageModel string
}

// NewClient creates a new Gemini API client.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("Gemini API key is required")
	}

	textModel := cfg.TextModel
	if textModel == "" {
		textModel = defaultTextModel
	}
	imageModel := cfg.ImageModel
	if imageModel == "" {
		imageModel = defaultImageModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("create Gemini client: %w", err)
	}

	return &Client{
		client:     client,
		textModel:  textModel,
		imageModel: imageModel,
	}, nil
}

var _ session.Generator = (*Client)(nil)

// CreateChallenge writes a target description for the difficulty tier, then
// renders it into the reference image.
func (c *Client) CreateChallenge(ctx context.Context, difficulty string) (*session.Challenge, error) {
	prompt := fmt.Sprintf(challengePrompt, TierBrief(difficulty))

	resp, err := c.client.Models.GenerateContent(ctx, c.textModel, genai.Text(prompt), nil)
	if err != nil {
		return nil, fmt.Errorf("generate target description: %w", err)
	}

	description := strings.TrimSpace(resp.Text())
	if description == "" {
		return nil, fmt.Errorf("empty target description from model")
	}

	slog.Debug("target description generated", "difficulty", difficulty, "length", len(description))

	img, err := c.GenerateImage(ctx, description)
	if err != nil {
		return nil, fmt.Errorf("render reference image: %w", err)
	}

	return &session.Challenge{
		TargetDescription: description,
		Image:             img,
	}, nil
}

// DescribeImage produces a structured description of an uploaded image.
// When the model's response does not parse as the structured shape, the raw
// text is kept as the description rather than failing the flow.
func (c *Client) DescribeImage(ctx context.Context, img imaging.Image, width, height int) (*session.Description, error) {
	parts := []*genai.Part{
		genai.NewPartFromText(fmt.Sprintf(describePrompt, width, height)),
		genai.NewPartFromBytes(img.Data, img.MIMEType),
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	config := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   descriptionSchema,
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.textModel, contents, config)
	if err != nil {
		return nil, fmt.Errorf("describe image: %w", err)
	}

	raw := strings.TrimSpace(resp.Text())
	if raw == "" {
		return nil, fmt.Errorf("empty description from model")
	}

	desc, err := parseDescription(raw)
	if err != nil {
		// Free-text fallback: a description we cannot parse is still a
		// usable target.
		slog.Warn("structured description did not parse, using raw text", "error", err)
		return &session.Description{Description: raw}, nil
	}
	return desc, nil
}

// GenerateImage renders a prompt with the image model.
func (c *Client) GenerateImage(ctx context.Context, prompt string) (imaging.Image, error) {
	config := &genai.GenerateContentConfig{
		ResponseModalities: []string{"TEXT", "IMAGE"},
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.imageModel, genai.Text(prompt), config)
	if err != nil {
		return imaging.Image{}, fmt.Errorf("generate image: %w", err)
	}

	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part.InlineData != nil && len(part.InlineData.Data) > 0 {
				return imaging.Image{
					Data:     part.InlineData.Data,
					MIMEType: part.InlineData.MIMEType,
				}, nil
			}
		}
	}

	return imaging.Image{}, fmt.Errorf("no image in model response")
}

// ScoreAttempt compares the reference and attempt images against their
// texts, returning a 0-100 score and per-parameter feedback.
func (c *Client) ScoreAttempt(ctx context.Context, reference, attempt imaging.Image, targetDescription, userPrompt string) (*session.Evaluation, error) {
	parts := []*genai.Part{
		genai.NewPartFromText(fmt.Sprintf(scorePrompt, targetDescription, userPrompt)),
		genai.NewPartFromBytes(reference.Data, reference.MIMEType),
		genai.NewPartFromBytes(attempt.Data, attempt.MIMEType),
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	config := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   evaluationSchema,
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.textModel, contents, config)
	if err != nil {
		return nil, fmt.Errorf("score attempt: %w", err)
	}

	eval, err := parseEvaluation(resp.Text())
	if err != nil {
		return nil, fmt.Errorf("parse score response: %w", err)
	}

	return eval, nil
}

// parseDescription decodes the structured description payload.
func parseDescription(raw string) (*session.Description, error) {
	var desc session.Description
	if err := json.Unmarshal([]byte(raw), &desc); err != nil {
		salvaged, serr := salvageJSONObject(raw)
		if serr != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(salvaged), &desc); err != nil {
			return nil, err
		}
	}
	if desc.Description == "" {
		return nil, fmt.Errorf("missing description field")
	}
	return &desc, nil
}

// parseEvaluation decodes the scoring payload, salvaging a JSON object from
// surrounding text if needed. A score outside 0-100 is a malformed response.
func parseEvaluation(raw string) (*session.Evaluation, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("empty response")
	}

	var eval session.Evaluation
	if err := json.Unmarshal([]byte(raw), &eval); err != nil {
		salvaged, serr := salvageJSONObject(raw)
		if serr != nil {
			return nil, fmt.Errorf("no JSON object in response: %w", err)
		}
		if err := json.Unmarshal([]byte(salvaged), &eval); err != nil {
			return nil, fmt.Errorf("malformed JSON object in response: %w", err)
		}
	}

	if eval.Score < 0 || eval.Score > 100 {
		return nil, fmt.Errorf("score %d out of range", eval.Score)
	}
	return &eval, nil
}

// salvageJSONObject finds the first balanced top-level JSON object in a
// response that may contain surrounding prose. Brace counting ignores
// braces inside strings.
func salvageJSONObject(response string) (string, error) {
	start := strings.IndexByte(response, '{')
	if start < 0 {
		return "", fmt.Errorf("no JSON object found in response")
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(response); i++ {
		c := response[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return response[start : i+1], nil
			}
		}
	}

	return "", fmt.Errorf("unbalanced JSON object in response")
}

var descriptionSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"description": {Type: genai.TypeString},
		"subject":     {Type: genai.TypeString},
		"style":       {Type: genai.TypeString},
		"setting":     {Type: genai.TypeString},
		"mood":        {Type: genai.TypeString},
	},
	Required: []string{"description"},
}

var evaluationSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"score": {Type: genai.TypeInteger},
		"analysis": {
			Type: genai.TypeArray,
			Items: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"parameter":     {Type: genai.TypeString},
					"target_phrase": {Type: genai.TypeString},
					"user_phrase":   {Type: genai.TypeString},
					"feedback":      {Type: genai.TypeString},
				},
				Required: []string{"parameter", "target_phrase", "user_phrase", "feedback"},
			},
		},
	},
	Required: []string{"score", "analysis"},
}
