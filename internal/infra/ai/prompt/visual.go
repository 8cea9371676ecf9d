package prompt

// VisualSchema is the JSON schema of the synthetic-image answer.
const VisualSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["synthetic_probability"],
  "properties": {
    "synthetic_probability": {"type": "number", "minimum": 0, "maximum": 1},
    "rationale": {"type": "string"}
  }
}`

// VisualSystemPrompt asks for a provenance estimate of one image.
func VisualSystemPrompt() string {
	return `You are an image forensics assistant. Estimate the probability that the attached image was produced by a generative model (diffusion, GAN or similar) rather than captured by a camera or scanner. You must produce one valid JSON object only (no markdown, no commentary).

Requirements:
- "synthetic_probability" is a number between 0 and 1.
- "rationale" is one short sentence naming the visual cues you relied on.
- Scanned paper documents and screenshots are not synthetic unless the content itself looks generated.

Schema (example):
{"synthetic_probability": 0.12, "rationale": "consistent sensor noise and natural lens blur"}`
}

// VisualUserPrompt is the text part sent alongside the image.
const VisualUserPrompt = "Assess this image and respond with the JSON per schema."
