package escrow

import "errors"

var (
	// ErrNotFound indicates no escrow record occupies the derived address.
	// A resolved escrow also fails this way after Cancel or Exchange: the
	// record no longer exists and cannot be resurrected.
	ErrNotFound = errors.New("escrow: not found")
	// ErrUnauthorized indicates the caller is neither the initializer nor
	// the taker of the escrow.
	ErrUnauthorized = errors.New("escrow: unauthorized caller")
	// ErrInvalidAsset indicates asset metadata (decimals) could not be
	// resolved for a referenced mint.
	ErrInvalidAsset = errors.New("escrow: invalid asset")
	// ErrInvalidAmount indicates a non-positive escrow amount.
	ErrInvalidAmount = errors.New("escrow: amount must be positive")
	// ErrAlreadyInitialized indicates the seed-derived address is already
	// occupied by a live escrow.
	ErrAlreadyInitialized = errors.New("escrow: already initialized")
	// ErrInsufficientTakerTokens indicates vault_b holds less than 95% of
	// the requested taker amount at settlement time.
	ErrInsufficientTakerTokens = errors.New("escrow: insufficient taker tokens, vault must hold at least 95% of requested amount")
	// ErrAuthorityMismatch indicates the (seed, bump) stored in the record
	// does not rederive to the record's address, so no vault transfer may
	// be authorized.
	ErrAuthorityMismatch = errors.New("escrow: derived authority mismatch")
)
