package ports

import (
	"context"

	"github.com/hospicore/auth-system/internal/core/domain"
)

// AccountRepository defines the interface for account persistence.
type AccountRepository interface {
	Create(ctx context.Context, account *domain.Account) (*domain.Account, error)
	// FindByIdentifier resolves a login identifier that may be a username,
	// an email address, or a phone number.
	FindByIdentifier(ctx context.Context, identifier string) (*domain.Account, error)
	FindByEmail(ctx context.Context, email string) (*domain.Account, error)
	FindByID(ctx context.Context, id string) (*domain.Account, error)
	Activate(ctx context.Context, id string) error
	List(ctx context.Context) ([]*domain.Account, error)
}
