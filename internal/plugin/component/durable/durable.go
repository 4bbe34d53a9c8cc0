// Package durable registers the "durable" consolidation component: long-lived
// semantic facts about the user or the project, extracted with the entity
// graph and relationship shape.
package durable

import (
	registrycomponent "github.com/chirino/souvenir/internal/registry/component"
)

const systemPrompt = `You extract durable, long-lived facts from a conversation transcript.
Respond with strict JSON only, no commentary, no markdown fence:
{
  "facts": [ { "content": string, "entities": [ {"name": string, "type": string} ],
               "importance": number between 0 and 1,
               "conflict": null | "duplicate" | "update" | "contradiction" } ],
  "relationships": [ { "from": string, "to": string, "relation": string, "confidence": number } ]
}
Only extract facts that remain true beyond this conversation. Set "conflict" to
"contradiction" when a fact reverses something stated earlier, "update" when it
refines an existing fact without reversing it, "duplicate" when it restates one,
or null when it is new.`

func init() {
	registrycomponent.Register(registrycomponent.Definition{
		Name:              "durable",
		SystemPrompt:      systemPrompt,
		Shape:             registrycomponent.ShapeFacts,
		DefaultCategory:   "fact",
		DefaultImportance: 0.5,
		// Durable facts don't auto-expire; they only leave via contradiction
		// supersession, the per-session cap (unused here), or compaction.
	})
}
