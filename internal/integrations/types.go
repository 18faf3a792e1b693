// internal/integrations/types.go
package integrations

import (
	"context"
	"encoding/json"

	"github.com/bartek5186/stockhub/internal/catalog"
	"github.com/bartek5186/stockhub/internal/ledger"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

type Integration interface {
	Name() string
	Start(ctx context.Context) error // blocks until ctx is done
	Stop()                           // idempotent
}

// Deps are the services an integration may use. The syncer hands the same
// instances to every integration it builds.
type Deps struct {
	DB      *gorm.DB
	Ledger  *ledger.Service
	Catalog *catalog.Service
}

type Factory func(log zerolog.Logger, raw json.RawMessage, deps Deps) (Integration, error)
