package repomanager

import (
	"context"

	"github.com/dmitrijs2005/bantx/internal/server/repositories/revocations"
	"github.com/dmitrijs2005/bantx/internal/server/repositories/users"
)

// MemoryRepositoryManager serves process-local repositories. Data is lost on
// restart; it backs tests and the "memory" store driver.
type MemoryRepositoryManager struct {
	users       *users.MemoryRepository
	revocations *revocations.MemoryRepository
}

func NewMemoryRepositoryManager() *MemoryRepositoryManager {
	return &MemoryRepositoryManager{
		users:       users.NewMemoryRepository(),
		revocations: revocations.NewMemoryRepository(),
	}
}

func (m *MemoryRepositoryManager) Init(context.Context) error { return nil }

func (m *MemoryRepositoryManager) Users() users.Repository { return m.users }

func (m *MemoryRepositoryManager) Revocations() revocations.Repository { return m.revocations }

func (m *MemoryRepositoryManager) WithinTx(ctx context.Context, fn func(ctx context.Context, r Repositories) error) error {
	return fn(ctx, Repositories{Users: m.users, Revocations: m.revocations})
}

func (m *MemoryRepositoryManager) Ping(context.Context) error { return nil }

func (m *MemoryRepositoryManager) Close(context.Context) error { return nil }
