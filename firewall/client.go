package firewall

import (
	"context"
)

//go:generate mockgen -destination=mock_client.go -package=firewall dev.hon.one/pfbridge/firewall Client

// Client - Data source for the firewall. Every call either returns data or fails on transport errors.
// Implementations must tolerate concurrent use by independent pollers.
type Client interface {
	GetSystemInfo(ctx context.Context) (*SystemInfo, error)
	GetHostFirmwareVersion(ctx context.Context) (*FirmwareVersion, error)
	GetTelemetry(ctx context.Context) (*Telemetry, error)
	GetConfig(ctx context.Context) (map[string]interface{}, error)
	GetInterfaces(ctx context.Context) (map[string]interface{}, error)
	GetServices(ctx context.Context) ([]Service, error)
	GetCARPInterfaces(ctx context.Context) ([]CARPInterface, error)
	GetCARPStatus(ctx context.Context) (bool, error)
	GetDHCPLeases(ctx context.Context) ([]Lease, error)
	GetARPTable(ctx context.Context, forceRefresh bool) ([]ARPEntry, error)
	DeleteARPEntry(ctx context.Context, ipAddress string) error
}
