package flows

import (
	"context"

	"github.com/vitadrop/vitaauth/tokenstore"
)

// LogoutDeps captures logout flow dependencies.
type LogoutDeps struct {
	Store tokenstore.Store
}

// RunLogout deletes the owner's refresh record. A missing record is not an error.
func RunLogout(ctx context.Context, userID string, deps LogoutDeps) error {
	return deps.Store.Delete(ctx, userID)
}
