package engine

// Importing this package registers the full set of built-in backends and
// consolidation components, the same way the teacher service's entry point
// blank-imported every plugin it shipped. Callers that want a narrower
// binary can skip this package and import only the specific plugin and
// component packages they need; engine.New never assumes any are present
// beyond what config.Config names.
import (
	_ "github.com/chirino/souvenir/internal/plugin/cache/noop"
	_ "github.com/chirino/souvenir/internal/plugin/cache/redis"
	_ "github.com/chirino/souvenir/internal/plugin/cache/ristretto"
	_ "github.com/chirino/souvenir/internal/plugin/component/durable"
	_ "github.com/chirino/souvenir/internal/plugin/component/environmental"
	_ "github.com/chirino/souvenir/internal/plugin/component/task"
	_ "github.com/chirino/souvenir/internal/plugin/embed/local"
	_ "github.com/chirino/souvenir/internal/plugin/embed/none"
	_ "github.com/chirino/souvenir/internal/plugin/embed/openai"
	_ "github.com/chirino/souvenir/internal/plugin/llm/openai"
	_ "github.com/chirino/souvenir/internal/plugin/store/postgres"
	_ "github.com/chirino/souvenir/internal/plugin/store/sqlite"
)
