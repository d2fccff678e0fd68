package shard

import (
	"crypto/sha256"
	"fmt"
	"strconv"
	"unicode/utf16"
)

// Key returns the durable identifier for a (pack, shard index) pair.
func Key(packID string, shardIndex int) string {
	return fmt.Sprintf("pack:%s:shard:%d", packID, shardIndex)
}

// PrimaryIndex deterministically routes a (user, pack) pair to its primary
// shard: the first 32 bits of SHA-256("userID:packID"), interpreted as a
// signed integer, absolute value, mod shardCount. Every claim for the same
// user and pack starts its retry chain at this index.
func PrimaryIndex(userID, packID string, shardCount int) int {
	sum := sha256.Sum256([]byte(userID + ":" + packID))
	v := int64(int32(uint32(sum[0])<<24 | uint32(sum[1])<<16 | uint32(sum[2])<<8 | uint32(sum[3])))
	if v < 0 {
		v = -v
	}
	return int(v % int64(shardCount))
}

// NextIndex computes the retry candidate after a failed attempt. The
// offset shrinks as the attempt number grows, so early retries jump far
// across the ring and later ones probe nearby. Attempt numbers are 1-based
// and increase monotonically across one claim's retry chain.
func NextIndex(currentIndex, attempt int, userID string, shardCount int) int {
	h := int64(stringHash(userID + strconv.Itoa(attempt)))
	if h < 0 {
		h = -h
	}
	offset := h/int64(attempt) + 1
	return (currentIndex + int(offset%int64(shardCount))) % shardCount
}

// stringHash is the classic 31x accumulator string hash over UTF-16 code
// units, truncated to 32 bits. Fast and stable; collision quality does not
// matter here, only determinism.
func stringHash(s string) int32 {
	var h int32
	for _, u := range utf16.Encode([]rune(s)) {
		h = h*31 + int32(u)
	}
	return h
}
