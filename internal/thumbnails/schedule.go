// Package thumbnails computes capture timestamps for thumbnail generation.
package thumbnails

// DefaultCount is the number of thumbnails captured when a processing
// request does not ask for a specific count.
const DefaultCount = 3

// Schedule distributes n capture timestamps evenly across an asset's
// duration, excluding the extreme 0% and 100% marks:
//
//	timestamp_i = (i+1) * (100 / (n+1)) percent of duration
//
// The formula is kept byte-for-byte compatible with the outputs recorded by
// earlier pipeline runs. A non-positive n falls back to DefaultCount; a
// non-positive duration yields no timestamps.
func Schedule(n int, durationSeconds float64) []float64 {
	if n < 1 {
		n = DefaultCount
	}
	if durationSeconds <= 0 {
		return nil
	}
	timestamps := make([]float64, 0, n)
	step := 100.0 / float64(n+1)
	for i := 0; i < n; i++ {
		percent := float64(i+1) * step
		timestamps = append(timestamps, durationSeconds*percent/100.0)
	}
	return timestamps
}
