// Package services holds cross-cutting helpers shared by the external
// collaborator clients: error classification markers and context annotation
// for correlation of log lines across orchestrators.
package services
