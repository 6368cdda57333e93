// Package skills registers every compiled skill. Importing it populates the
// registry, the same way database/sql drivers register themselves.
package skills

import (
	"github.com/halgrim/skilldex/internal/registry"

	_ "github.com/halgrim/skilldex/internal/skills/cropyield"
	_ "github.com/halgrim/skilldex/internal/skills/expense"
	_ "github.com/halgrim/skilldex/internal/skills/labsample"
	_ "github.com/halgrim/skilldex/internal/skills/loangrade"
	_ "github.com/halgrim/skilldex/internal/skills/stormclaim"
)

// All returns every registered compiled skill handler.
func All() []registry.Handler {
	return registry.List()
}
