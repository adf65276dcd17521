package gemini

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEvaluation(t *testing.T) {
	t.Run("clean JSON object", func(t *testing.T) {
		raw := `{"score": 85, "analysis": [{"parameter": "color", "target_phrase": "red fox", "user_phrase": "fox", "feedback": "close"}]}`

		eval, err := parseEvaluation(raw)
		require.NoError(t, err)
		assert.Equal(t, 85, eval.Score)
		require.Len(t, eval.Items, 1)
		assert.Equal(t, "color", eval.Items[0].Parameter)
		assert.Equal(t, "red fox", eval.Items[0].TargetPhrase)
	})

	t.Run("salvages object from surrounding prose", func(t *testing.T) {
		raw := "Here is my evaluation:\n\n" +
			`{"score": 42, "analysis": []}` +
			"\n\nLet me know if you need more detail."

		eval, err := parseEvaluation(raw)
		require.NoError(t, err)
		assert.Equal(t, 42, eval.Score)
		assert.Empty(t, eval.Items)
	})

	t.Run("braces inside strings do not confuse the salvage", func(t *testing.T) {
		raw := "note: " + `{"score": 10, "analysis": [{"parameter": "detail", "target_phrase": "curly {braces}", "user_phrase": "", "feedback": "ok"}]}`

		eval, err := parseEvaluation(raw)
		require.NoError(t, err)
		assert.Equal(t, "curly {braces}", eval.Items[0].TargetPhrase)
	})

	t.Run("score above range is malformed", func(t *testing.T) {
		_, err := parseEvaluation(`{"score": 250, "analysis": []}`)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "out of range")
	})

	t.Run("negative score is malformed", func(t *testing.T) {
		_, err := parseEvaluation(`{"score": -5, "analysis": []}`)
		assert.Error(t, err)
	})

	t.Run("no JSON at all", func(t *testing.T) {
		_, err := parseEvaluation("The attempt looks pretty good overall.")
		assert.Error(t, err)
	})

	t.Run("unbalanced object", func(t *testing.T) {
		_, err := parseEvaluation(`{"score": 10, "analysis": [`)
		assert.Error(t, err)
	})

	t.Run("empty response", func(t *testing.T) {
		_, err := parseEvaluation("   ")
		assert.Error(t, err)
	})
}

func TestParseDescription(t *testing.T) {
	t.Run("structured shape", func(t *testing.T) {
		raw := `{"description": "a tiny square", "subject": "square", "style": "flat", "setting": "void", "mood": "calm"}`

		desc, err := parseDescription(raw)
		require.NoError(t, err)
		assert.Equal(t, "a tiny square", desc.Description)
		assert.Equal(t, "flat", desc.Style)
	})

	t.Run("object embedded in prose", func(t *testing.T) {
		raw := "Sure! " + `{"description": "a boat at sea"}`

		desc, err := parseDescription(raw)
		require.NoError(t, err)
		assert.Equal(t, "a boat at sea", desc.Description)
	})

	t.Run("missing description field", func(t *testing.T) {
		_, err := parseDescription(`{"subject": "a boat"}`)
		assert.Error(t, err)
	})

	t.Run("plain prose does not parse", func(t *testing.T) {
		_, err := parseDescription("a boat at sea under grey clouds")
		assert.Error(t, err)
	})
}

func TestSalvageJSONObject(t *testing.T) {
	t.Run("nested objects stay balanced", func(t *testing.T) {
		raw := `preamble {"a": {"b": {"c": 1}}, "d": 2} trailer {"x": 3}`

		got, err := salvageJSONObject(raw)
		require.NoError(t, err)
		assert.Equal(t, `{"a": {"b": {"c": 1}}, "d": 2}`, got)
	})

	t.Run("escaped quotes inside strings", func(t *testing.T) {
		raw := `{"msg": "he said \"hi\" {twice}"}`

		got, err := salvageJSONObject(raw)
		require.NoError(t, err)
		assert.Equal(t, raw, got)
	})

	t.Run("no object", func(t *testing.T) {
		_, err := salvageJSONObject("[1, 2, 3]")
		assert.Error(t, err)
	})
}

func TestTierBrief(t *testing.T) {
	t.Run("known tiers", func(t *testing.T) {
		for _, name := range TierNames() {
			assert.NotEmpty(t, TierBrief(name), name)
		}
	})

	t.Run("unknown tier gets a generic brief", func(t *testing.T) {
		brief := TierBrief("Nightmare Mode")
		assert.NotEmpty(t, brief)
	})

	t.Run("five tiers in ladder order", func(t *testing.T) {
		names := TierNames()
		require.Len(t, names, 5)
		assert.Equal(t, "Object Clarity", names[0])
		assert.Equal(t, "Total Synthesis", names[4])
	})
}

func TestNewClient(t *testing.T) {
	t.Run("requires an API key", func(t *testing.T) {
		_, err := NewClient(context.Background(), Config{})
		assert.Error(t, err)
	})
}
