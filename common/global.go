package common

// Global non-constant variables go here.

// GlobalConfig - Global singleton.
var GlobalConfig = Config{
	HTTPEndpoint:              ":8080",
	Title:                     "pfSense",
	ScanInterval:              30,
	DeviceTrackerScanInterval: 150,
	SaveDelaySeconds:          1.0,
}
