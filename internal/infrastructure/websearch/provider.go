package websearch

import (
	"context"

	"github.com/sedanonpc/agent-daredevil-telegram-bot-sub000/internal/domain/entity"
)

// Provider is one upstream search backend. Implementations must honor the
// context deadline and return at most limit results.
type Provider interface {
	Name() string
	Search(ctx context.Context, query string, limit int) ([]entity.WebResult, error)
}
