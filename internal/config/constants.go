package config

import "time"

const (
	// RSSI to distance estimation
	MeasuredPower = -59.0 // RSSI at 1 meter (dBm)
	PathLossExp   = 2.5   // Path loss exponent (N)

	// Device management
	DeviceTimeout  = 30 * time.Second // Remove devices not seen for this long
	EvictInterval  = 5 * time.Second  // How often to run eviction
	SmoothingAlpha = 0.3              // EMA smoothing factor (30% new, 70% old)
	RSSIHistoryLen = 60               // RSSI samples kept per device for the sparkline

	// Display
	TargetFPS     = 30              // Target frames per second
	StatusTimeout = 4 * time.Second // Transient status line lifetime

	// Scanner
	ClassicScanSec = 8 // hcitool scan duration in seconds

	// App
	AppName    = "GATTSCOPE"
	AppVersion = "1.0"
)
