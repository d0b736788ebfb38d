package sentinel

import "errors"

// Sentinel errors for the anonymisation core. Components return these
// (optionally wrapped) so callers can translate them with errors.Is without
// depending on concrete types.
//
// These map to distinct failure classes:
// - ErrConfiguration: bad policy or registration, detected at startup or
//   finalize. Fatal - the process should not proceed to serve traffic.
// - ErrNotRegistered: operation on a record type without a policy.
// - ErrUnsupportedField: field class cannot be anonymised without a custom
//   rule. Aborts the single anonymise operation, never silently skipped.
// - ErrPolicy: anonymisation attempted on a record whose policy forbids it.
// - ErrAnonymiseDisabled: database-wide anonymisation attempted without the
//   explicit enable gate.
// - ErrNotFound: entity does not exist in a store.
var (
	ErrConfiguration     = errors.New("configuration error")
	ErrNotRegistered     = errors.New("record type not registered")
	ErrUnsupportedField  = errors.New("field cannot be anonymised")
	ErrPolicy            = errors.New("policy forbids anonymisation")
	ErrAnonymiseDisabled = errors.New("database anonymisation is not enabled")
	ErrNotFound          = errors.New("not found")
)
