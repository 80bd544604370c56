package billing

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	Create(ctx context.Context, i *Invoice) error

	// GetByID returns ErrInvoiceNotFound if no row exists.
	GetByID(ctx context.Context, id uuid.UUID) (*Invoice, error)

	// Update saves the full row.
	Update(ctx context.Context, i *Invoice) error

	List(ctx context.Context, q *ListInvoicesQuery) (*PagedInvoices, error)

	// NextNumber allocates the next sequential invoice number, e.g. "INV-000042".
	NextNumber(ctx context.Context) (string, error)
}
