// Package transaction implements the exclusive enqueue transaction: at
// most one in flight across all clients, identified by its owning
// connection, accumulating additions in a scratch playlist until Commit
// or an implicit abort on connection close.
package transaction

import "fmt"

// NoOwner is the sentinel meaning no transaction is open.
const NoOwner = -1

// ErrLocked is returned when a non-owning connection attempts a
// transactional operation while a transaction is held by another
// connection.
var ErrLocked = fmt.Errorf("locked")

// Transaction is the single in-flight enqueue transaction. It is mutated
// only by its owning connection's command handlers.
type Transaction struct {
	owner   int // owning connection fd, or NoOwner
	scratch []string
}

// New returns a Transaction with no owner.
func New() *Transaction {
	return &Transaction{owner: NoOwner}
}

// Owner returns the owning connection fd, or NoOwner.
func (tx *Transaction) Owner() int { return tx.owner }

// Open reports whether a transaction is currently held.
func (tx *Transaction) Open() bool { return tx.owner != NoOwner }

// OwnedBy reports whether fd holds the open transaction.
func (tx *Transaction) OwnedBy(fd int) bool {
	return tx.owner != NoOwner && tx.owner == fd
}

// Begin opens a transaction owned by fd. Returns ErrLocked if another
// connection already holds one.
func (tx *Transaction) Begin(fd int) error {
	if tx.owner != NoOwner && tx.owner != fd {
		return ErrLocked
	}
	tx.owner = fd
	tx.scratch = nil
	return nil
}

// Add appends path to the scratch playlist. Returns ErrLocked if fd does
// not own the open transaction.
func (tx *Transaction) Add(fd int, path string) error {
	if tx.owner == NoOwner {
		return fmt.Errorf("transaction: no transaction open")
	}
	if tx.owner != fd {
		return ErrLocked
	}
	tx.scratch = append(tx.scratch, path)
	return nil
}

// Scratch returns the accumulated additions. The returned slice must not
// be retained past the next mutation.
func (tx *Transaction) Scratch() []string { return tx.scratch }

// Commit validates that fd owns the transaction and returns its scratch
// playlist, then resets the transaction to the no-owner state. Callers
// splice the returned entries into the live playlist themselves; the
// commit-offset semantics live in the playlist package.
func (tx *Transaction) Commit(fd int) ([]string, error) {
	if tx.owner == NoOwner {
		return nil, fmt.Errorf("transaction: no transaction open")
	}
	if tx.owner != fd {
		return nil, ErrLocked
	}
	scratch := tx.scratch
	tx.reset()
	return scratch, nil
}

// Abort drops the scratch playlist and resets ownership, used both for
// an explicit abort and for the implicit abort on connection close
//.
func (tx *Transaction) Abort(fd int) {
	if tx.owner == fd {
		tx.reset()
	}
}

// AbortIfOwnedBy is an alias of Abort kept for call-site clarity at
// connection-close sites.
func (tx *Transaction) AbortIfOwnedBy(fd int) {
	tx.Abort(fd)
}

func (tx *Transaction) reset() {
	tx.owner = NoOwner
	tx.scratch = nil
}
