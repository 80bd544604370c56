package billing

import "errors"

var (
	ErrInvoiceNotFound      = errors.New("invoice not found")
	ErrInvoiceNotDraft      = errors.New("only draft invoices can be issued")
	ErrInvoiceNotPayable    = errors.New("invoice is not open for payment")
	ErrInvoiceNotVoidable   = errors.New("paid or voided invoices cannot be voided")
	ErrInvalidPaymentAmount = errors.New("payment amount must be positive and not exceed the outstanding balance")
	ErrNoLineItems          = errors.New("invoice requires at least one line item")
)
