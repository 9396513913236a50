// Package bridge runs one SPI link as a standalone process: it binds the
// transport to a platform, wires the co-processor subsystems, serves the
// admin API and logs a periodic heartbeat until shutdown.
package bridge
