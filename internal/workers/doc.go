/*
Package workers sizes worker pools for containerized environments.

runtime.NumCPU reports the host's CPUs, while GOMAXPROCS follows the
container's CPU quota. Pool sizes are derived from GOMAXPROCS so that a pod
limited to 2 cores on a 64-core node starts 2 or 3 decoders, not 64.

# Usage

	sem := semaphore.NewWeighted(int64(workers.ForMixed(8)))

ForCPU, ForIO and ForMixed apply multipliers of 1.0, 2.0 and 1.5 per CPU.
Count takes an explicit multiplier:

	n := workers.Count(3.0, 24) // 3 per CPU, at most 24

# Environment Variable Override

EXTRACTOR_WORKERS pins the count for every helper:

	EXTRACTOR_WORKERS=4 ./lazythumb

Invalid or non-positive values are ignored. The limit argument still caps an
override.
*/
package workers
