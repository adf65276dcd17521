package gemini

// Difficulty tiers of the training ladder. The brief steers how elaborate
// the generated target description should be.
var difficultyTiers = []struct {
	Name  string
	Brief string
}{
	{"Object Clarity", "a single clearly bounded subject on a simple background, described in one short sentence"},
	{"Scene Composition", "a subject placed in an environment, with foreground and background relationship spelled out"},
	{"Lighting & Texture", "specific lighting conditions and material textures: reflections, scattering, rays"},
	{"Mood & Narrative", "an emotional atmosphere conveyed through abstract descriptors, beyond the literal scene"},
	{"Total Synthesis", "multiple subjects, an explicit artistic style, and intricate composition rules"},
}

// TierBrief returns the generation brief for a tier name, or a generic
// brief when the tier is unknown (tiers are display labels, not an enum).
func TierBrief(name string) string {
	for _, t := range difficultyTiers {
		if t.Name == name {
			return t.Brief
		}
	}
	return "a visually interesting scene of moderate complexity"
}

// TierNames lists the known difficulty tiers in ladder order.
func TierNames() []string {
	names := make([]string, len(difficultyTiers))
	for i, t := range difficultyTiers {
		names[i] = t.Name
	}
	return names
}

const challengePrompt = `You are the challenge generator for an image-prompting training tool.
Write one target description for an image the trainee must recreate by writing their own prompt.

Difficulty brief: %s.

Rules:
- One paragraph, 15 to 40 words, concrete and visual.
- Describe subject, setting, style and color explicitly.
- No preamble, no quotes, no markdown. Output the description text only.`

const describePrompt = `Analyze this image (%dx%d pixels) and produce a structured description of it.
Describe what a text-to-image model would need to recreate it: the subject,
the setting, the artistic style and the overall mood, plus a single
"description" sentence combining them.`

const scorePrompt = `You are scoring an image-prompting training attempt.

The trainee was shown the first image (the reference) and wrote a prompt to recreate it.
Their prompt produced the second image (the attempt).

Target description of the reference:
%s

Trainee's prompt:
%s

Compare the two images and the two texts. Produce:
- "score": an integer 0-100 for how well the attempt matches the reference.
- "analysis": one entry per evaluated parameter (subject, style, composition,
  setting, color, action, detail as applicable). In each entry,
  "target_phrase" must be an exact substring copied from the target
  description and "user_phrase" an exact substring copied from the trainee's
  prompt (empty string when the parameter is absent from that text), and
  "feedback" one or two sentences of concrete advice.`
