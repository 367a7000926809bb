package transport

import "log/slog"

// linkLogger tags records with the port and, for USB ports, its vendor and product IDs.
func linkLogger(info PortInfo) *slog.Logger {
	logger := slog.With("component", "transport", "link", info.Name)
	if !info.IsUSB {
		return logger
	}

	return logger.With("vid", info.VID, "pid", info.PID)
}
