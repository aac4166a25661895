package domain

import "github.com/bwmarrin/snowflake"

// DeclinedError is returned when the gateway refused the charge. The failed
// payment has already been persisted when this error is returned.
type DeclinedError struct {
	PaymentID snowflake.ID
	Reason    string
	Payment   Payment
}

func (e *DeclinedError) Error() string {
	return "payment_declined: " + e.Reason
}

func (e *DeclinedError) Unwrap() error { return ErrPaymentDeclined }

// StoreError wraps a persistence failure.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	if e.Err == nil {
		return "store_unavailable: " + e.Op
	}
	return "store_unavailable: " + e.Op + ": " + e.Err.Error()
}

func (e *StoreError) Is(target error) bool { return target == ErrStore }

func (e *StoreError) Unwrap() error { return e.Err }
