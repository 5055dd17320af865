package drafter

import (
	"fmt"

	"voxmail/internal/domain"
)

const systemPrompt = `
You write concise professional emails from a user's dictated or typed notes.

RULES:
1. Write the email in the requested language only.
2. Use the requested tone:
   - formal: polite, business register, no slang.
   - friendly: warm and relaxed, still professional.
   - firm: direct and assertive, polite but without hedging.
3. Keep it short and clear. Do not invent facts, names or dates that are not in the notes.
4. Do not add notes, explanations or markdown.

OUTPUT FORMAT (JSON only):
{
  "subject": "<short subject>",
  "body": "<email body, paragraphs separated by blank lines>"
}
`

// BuildPrompt returns the system and user messages for one draft request.
func BuildPrompt(req domain.DraftRequest) (system, user string) {
	user = fmt.Sprintf(
		"Language: %s (%s). Tone: %s.\nDraft a short, clear email based on this input:\n---\n%s\n---",
		req.Language.Name(), req.Language, req.Tone, req.SourceText,
	)
	return systemPrompt, user
}
