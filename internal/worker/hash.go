package worker

import "hash/fnv"

// Hash is the unsigned 32-bit FNV-1a hash of a word, the shuffle bucket id.
func Hash(word string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(word))
	return h.Sum32()
}

// Destination is the rank of the used machine owning a bucket.
func Destination(hash uint32, machineCount int) int {
	return int(hash % uint32(machineCount))
}
