package driven

import (
	"context"
	"errors"

	"github.com/pipeboard/pipeboard/internal/domain/model"
)

// Sentinel errors returned by RepoStore implementations.
var (
	// ErrRepoNotFound indicates the requested repository does not exist.
	ErrRepoNotFound = errors.New("repository not found")

	// ErrRepoAlreadyExists indicates a repository with the same full name
	// already exists for the provider.
	ErrRepoAlreadyExists = errors.New("repository already exists")
)

// RepoStore defines the driven port for repository persistence.
// Add returns ErrRepoAlreadyExists on a duplicate (provider, full_name).
// Remove returns ErrRepoNotFound if the repository does not exist; removal
// cascades to the repository's runs and alerts.
// Upsert inserts or refreshes by (provider, full_name) and returns the
// stored repository including its database ID; it is used for
// provider-discovered targets such as Jenkins jobs.
type RepoStore interface {
	Add(ctx context.Context, repo model.Repository) error
	Upsert(ctx context.Context, repo model.Repository) (*model.Repository, error)
	Remove(ctx context.Context, id int64) error
	GetByID(ctx context.Context, id int64) (*model.Repository, error)
	GetByFullName(ctx context.Context, provider model.Provider, fullName string) (*model.Repository, error)
	ListByProvider(ctx context.Context, provider model.Provider) ([]model.Repository, error)
	ListAll(ctx context.Context) ([]model.Repository, error)
}
