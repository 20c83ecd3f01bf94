// Package transcode orchestrates readiness batches: one transcode job per
// requested quality tier plus one thumbnail job, submitted to the external
// worker and polled until every job lands. A batch is all-or-nothing; the
// asset becomes ready only when the full ladder and the thumbnails exist.
package transcode
