// Package accesssync propagates subscription access state to the hosting
// service. A sync job fans the subscriber's desired visibility out across
// every published asset; the runner drains pending jobs and the sweeper
// retries failed ones oldest-first.
package accesssync
