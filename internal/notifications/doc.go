// Package notifications pushes operator-facing events to ntfy. When no topic
// is configured every notification is a no-op, so callers never need to
// guard their sends.
package notifications
