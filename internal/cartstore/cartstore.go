// Package cartstore is the durable per-operator cart storage: the terminal's
// replacement for the browser's localStorage entry. Carts survive terminal
// restarts; every successful cart mutation is written through, and the entry
// is deleted when a sale commits.
package cartstore

import (
	"context"
	"errors"
	"strings"

	"petpos/terminal/internal/cart"
)

var ErrNotFound = errors.New("cart not found")

type Store interface {
	Load(ctx context.Context, key string) ([]cart.SavedLine, error)
	Save(ctx context.Context, key string, lines []cart.SavedLine) error
	Delete(ctx context.Context, key string) error
}

// Key derives the storage key for an operator. Carts are namespaced per
// operator so concurrent cashiers on a shared terminal never see each other's
// in-progress sale.
func Key(username string) string {
	return "cart_" + strings.ToLower(strings.TrimSpace(username))
}
