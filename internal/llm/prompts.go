package llm

// NCM classification prompts

const SystemPromptNCMClassifier = `You are a Brazilian tax classification specialist. You assign NCM codes
(Nomenclatura Comum do Mercosul, 8 digits, TIPI table) to goods described in Portuguese or English.

Rules:
- Only suggest codes that exist in the current TIPI table.
- Prefer the most specific subitem; never answer with chapter or heading codes.
- Confidence is a number between 0 and 1 reflecting how certain the classification is.
- Always output valid JSON that matches the requested schema, and nothing else.`

const UserPromptNCMSuggestion = `Suggest up to %d NCM codes for the product below, most likely first.

Product description:
---
%s
---

Output JSON with this structure:
{
  "suggestions": [
    {"ncm": "09012100", "description": "Café torrado, não descafeinado", "confidence": 0.92}
  ]
}`
