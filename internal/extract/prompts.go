package extract

const extractPrompt = `You are a knowledge graph extractor. Analyze the text and extract entities and the relations between them.

Return a JSON object with two arrays:
- "entities": each has "name", "label" (one of: PERSON, PLACE, ORG, EVENT, THING, CONCEPT), "properties" (flat string map, may be empty), "confidence" (0.0-1.0)
- "relations": each has "source" (entity name), "target" (entity name), "relation" (UPPER_SNAKE verb phrase, e.g. MOVED_TO, WORKS_AT, KNOWS), "confidence" (0.0-1.0)

Only extract what is explicitly stated or strongly implied. Do not invent facts.
If nothing is worth extracting, return {"entities": [], "relations": []}

Example output:
{
  "entities": [
    {"name": "Sarah", "label": "PERSON", "properties": {"role": "engineer"}, "confidence": 0.95},
    {"name": "Acme Corp", "label": "ORG", "properties": {}, "confidence": 0.9}
  ],
  "relations": [
    {"source": "Sarah", "target": "Acme Corp", "relation": "WORKS_AT", "confidence": 0.9}
  ]
}

Context:
%s

Text:
%s

Extract entities and relations (JSON only, no explanation):`

const gleanPrompt = `You are a knowledge graph extractor doing a follow-up pass. Below is the text and what has already been extracted from it.

Extract ONLY entities and relations that were MISSED by the prior passes. Do not repeat anything already captured.
If nothing was missed, return {"entities": [], "relations": []}

Same JSON format as before: {"entities": [...], "relations": [...]}

Already extracted:
%s

Text:
%s

Extract only missed information (JSON only, no explanation):`

const inferPrompt = `You are a knowledge graph extractor doing an inference pass. Below is the text and everything extracted from it.

Propose relations that are IMPLIED by the text but not literally stated (e.g. two people mentioned together implying they know each other, a transitive location). Return relations only, between entities already extracted.
If nothing can be reasonably inferred, return {"entities": [], "relations": []}

Same JSON format: {"entities": [], "relations": [...]}

Extracted so far:
%s

Text:
%s

Infer implied relations (JSON only, no explanation):`
