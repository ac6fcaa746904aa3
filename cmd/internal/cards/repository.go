package cards

import "context"

// Repository persists cards. Adapters hold no policy: ownership is enforced
// by matching (id, ownerID) atomically and reported as ErrNotFound.
type Repository interface {
	Insert(ctx context.Context, c Card) error
	// ListByOwner returns ownerID's cards, newest first.
	ListByOwner(ctx context.Context, ownerID string) ([]Card, error)
	// ListPublicExcept returns public cards not owned by ownerID, newest first.
	ListPublicExcept(ctx context.Context, ownerID string) ([]Card, error)
	UpdateOwned(ctx context.Context, id, ownerID string, p Patch) (Card, error)
	DeleteOwned(ctx context.Context, id, ownerID string) error
	// CompletionStats counts fully completed public cards per owner handle.
	CompletionStats(ctx context.Context) (map[string]int, error)
}
