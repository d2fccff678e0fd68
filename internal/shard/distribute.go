package shard

// DistributeTokens spreads a stock delta across shardCount buckets by
// round-robin assignment: unit i lands in bucket i mod shardCount. The
// result always conserves the input exactly (the buckets sum to total)
// and is near-uniform (max - min <= 1), with any remainder going to the
// lowest indices.
func DistributeTokens(total, shardCount int) []int {
	distribution := make([]int, shardCount)
	if total <= 0 {
		return distribution
	}

	base := total / shardCount
	remainder := total % shardCount
	for i := range distribution {
		distribution[i] = base
		if i < remainder {
			distribution[i]++
		}
	}
	return distribution
}
