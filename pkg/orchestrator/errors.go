package orchestrator

import (
	"errors"
	"fmt"
)

var (
	ErrWalletNotConnected  = errors.New("wallet not connected")
	ErrRecordNotFound      = errors.New("record not found")
	ErrTransactionRejected = errors.New("transaction rejected")
	ErrOperationInFlight   = errors.New("operation already in flight")
	ErrOfferNotOpen        = errors.New("offer is not open")
	ErrNotMaker            = errors.New("connected wallet is not the offer maker")
	ErrUnknownToken        = errors.New("unknown token")
	ErrClosed              = errors.New("orchestrator is closed")
)

// RecordNotFoundError names the missing wallet record and the action that
// would provide it.
type RecordNotFoundError struct {
	Record string
	Hint   string
}

func (e *RecordNotFoundError) Error() string {
	if e.Hint == "" {
		return fmt.Sprintf("%s not found in wallet", e.Record)
	}
	return fmt.Sprintf("%s not found in wallet: %s", e.Record, e.Hint)
}

func (e *RecordNotFoundError) Is(target error) bool {
	return target == ErrRecordNotFound
}

// TransactionRejectedError carries the wallet's failure for a program call.
type TransactionRejectedError struct {
	Function string
	Err      error
}

func (e *TransactionRejectedError) Error() string {
	return fmt.Sprintf("%s transaction rejected: %v", e.Function, e.Err)
}

func (e *TransactionRejectedError) Unwrap() error {
	return e.Err
}

func (e *TransactionRejectedError) Is(target error) bool {
	return target == ErrTransactionRejected
}
