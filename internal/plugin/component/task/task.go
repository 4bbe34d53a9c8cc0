// Package task registers the "task" consolidation component: goals and todo
// items scoped to a single working session, capped in count and expired the
// moment the session moves on.
package task

import (
	registrycomponent "github.com/chirino/souvenir/internal/registry/component"
)

const systemPrompt = `You extract active goals and todo items from a conversation transcript.
Respond with strict JSON only, no commentary, no markdown fence:
{
  "items": [ { "content": string, "category": string, "importance": number between 0 and 1,
               "action": "new" | "merge" } ]
}
Use "merge" when an item restates or updates one already tracked in this session,
"new" otherwise.`

func init() {
	registrycomponent.Register(registrycomponent.Definition{
		Name:               "task",
		SystemPrompt:       systemPrompt,
		Shape:              registrycomponent.ShapeItems,
		SessionScoped:      true,
		DefaultCategory:    "goal",
		DefaultImportance:  0.6,
		MaxItemsPerSession: 20,
	})
}
