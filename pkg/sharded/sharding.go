package sharded

import "hash/fnv"

// DefaultShards is the shard count used by NewMap callers that have no better estimate.
const DefaultShards = 32

// shardIndex hashes key with FNV-1a and masks it into [0, numShards).
// numShards must be a power of two.
func shardIndex(key string, numShards int) int {
	h := fnv.New32a()
	h.Write([]byte(key))
	return int(h.Sum32() & uint32(numShards-1))
}

func isPowerOfTwo(n int) bool {
	return n > 0 && (n&(n-1)) == 0
}
