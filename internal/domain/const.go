package domain

import "time"

const (
	// ShardCount is the fixed number of inventory shards per pack.
	// Every pack's stock is spread across this many independently
	// serialized partitions.
	ShardCount = 128

	// MaxClaimAttempts bounds the shard retry chain for a single claim
	// call. Exhausting it yields a definitive sold-out answer even when
	// untried shards still hold tokens.
	MaxClaimAttempts = 8

	// MaxBulkStatusPacks is the maximum number of pack IDs accepted by a
	// single bulk status request.
	MaxBulkStatusPacks = 100

	// MaxBatchRequests is the maximum number of sub-requests in a batch
	// envelope.
	MaxBatchRequests = 50

	// BatchTimestampTolerance is how far a batch's declared timestamp may
	// drift from server time before the batch is rejected.
	BatchTimestampTolerance = 30 * time.Second

	// NonceTTL is how long a batch nonce is remembered for replay
	// rejection.
	NonceTTL = 300 * time.Second

	// MinTokenLength is the minimum accepted length of a bearer token.
	MinTokenLength = 32

	// DefaultTokenTTLDays is the default lifetime of a minted auth token.
	DefaultTokenTTLDays = 365
)
