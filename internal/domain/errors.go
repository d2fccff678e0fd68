package domain

import "errors"

var (
	// ErrShardEmpty is returned by a claim against a shard with no tokens
	// left.
	ErrShardEmpty = errors.New("shard empty")

	// ErrAlreadyClaimed is returned by a claim when the user already holds
	// a claim on that shard.
	ErrAlreadyClaimed = errors.New("already claimed on this shard")

	// ErrShardNotProvisioned is returned by a status probe against a shard
	// that has never been initialized. It is the only signal that permits
	// provisioning a shard from scratch during a restock.
	ErrShardNotProvisioned = errors.New("shard not provisioned")

	// ErrPackSoldOut is returned when a claim exhausts its retry chain
	// without acquiring a token.
	ErrPackSoldOut = errors.New("pack sold out")
)
