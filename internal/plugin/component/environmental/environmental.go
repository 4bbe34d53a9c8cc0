// Package environmental registers the "environmental" consolidation
// component: observations about the agent's surroundings (tool versions,
// file layout, running services) that lose relevance over time and decay
// faster than durable facts.
package environmental

import (
	registrycomponent "github.com/chirino/souvenir/internal/registry/component"
)

const systemPrompt = `You extract observations about the environment the agent is operating in
from a conversation transcript (tools, versions, file layout, running services).
Respond with strict JSON only, no commentary, no markdown fence:
{
  "observations": [ { "content": string, "category": string, "importance": number between 0 and 1 } ]
}`

func init() {
	registrycomponent.Register(registrycomponent.Definition{
		Name:                "environmental",
		SystemPrompt:        systemPrompt,
		Shape:               registrycomponent.ShapeObservations,
		DefaultCategory:     "observation",
		DefaultImportance:   0.4,
		DecayInactivePeriod: int64(7 * 24 * 3600), // seconds
		DecayRate:           0.5,
		FloorThreshold:      0.05,
	})
}
