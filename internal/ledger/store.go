package ledger

// Store is the durable set of payment ids already submitted successfully.
// It is loaded fully at run start and only ever grows; entries are written
// on confirmed success and never deleted. Backends must make Append atomic
// with respect to partial writes: a crash may lose the last entry but must
// never leave a malformed one.
type Store interface {
	Contains(paymentID string) bool
	Append(paymentID string) error
	Close() error
}
