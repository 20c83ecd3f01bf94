// Command reelpipe is the operator CLI. It talks to the daemon's local HTTP
// API for runtime state and manages configuration files directly.
package main
