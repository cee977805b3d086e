// Package chronicle implements the append-only, role-gated case-law store.
// Every verdict the Elder produces — approvals, refusals, martial-law
// voids — is persisted here, plus every appeal. The store issues capability
// handles: readers are free, writers are issued only to the Elder. There
// are no update or delete operations; that absence is part of the contract.
package chronicle

import (
	"errors"
	"fmt"
	"strings"
)

// HandleRole is the capability level a handle carries.
type HandleRole string

const (
	RoleReader HandleRole = "READER"
	RoleWriter HandleRole = "WRITER"
)

// Handle is a value-carrying capability consumed by Chronicle write
// operations. Fields are unexported so the WRITER constructor cannot be
// reached from outside this package; the store additionally re-checks the
// role on every write (two gating layers).
type Handle struct {
	role  HandleRole
	owner string
}

// Role returns the capability level.
func (h Handle) Role() HandleRole { return h.role }

// Owner returns the identity the handle was issued to.
func (h Handle) Owner() string { return h.owner }

// CanWrite reports whether the handle permits write operations.
func (h Handle) CanWrite() bool { return h.role == RoleWriter }

// CanRead reports whether the handle permits reads. All issued handles can
// read; only the zero value cannot.
func (h Handle) CanRead() bool { return h.role == RoleReader || h.role == RoleWriter }

// Sentinel errors for the chronicle error taxonomy. The HTTP layer maps
// these to status codes with errors.Is.
var (
	// ErrAccess marks a write-class operation attempted without a WRITER
	// handle, or a WRITER handle requested by a non-Elder identity.
	ErrAccess = errors.New("chronicle: access violation")
	// ErrPersistence marks a write that could not be made durable.
	ErrPersistence = errors.New("chronicle: persistence failure")
	// ErrCaseNotFound marks a lookup of an absent case id.
	ErrCaseNotFound = errors.New("chronicle: case not found")
)

// accessError builds the canonical access-violation error.
func accessError(by, op string) error {
	return fmt.Errorf("%w: CONSTITUTIONAL VIOLATION: %s attempted %s without a WRITER handle", ErrAccess, by, op)
}

// NewReaderHandle issues a READER handle. Always succeeds.
func NewReaderHandle(agentName string) Handle {
	return Handle{role: RoleReader, owner: agentName}
}

// NewWriterHandle issues a WRITER handle. Succeeds only when the caller
// identifies as the Elder (case-insensitive).
func NewWriterHandle(caller string) (Handle, error) {
	if strings.ToUpper(caller) != "ELDER" {
		return Handle{}, fmt.Errorf("%w: CONSTITUTIONAL VIOLATION: %q requested a WRITER handle; only ELDER may write", ErrAccess, caller)
	}
	return Handle{role: RoleWriter, owner: caller}, nil
}
