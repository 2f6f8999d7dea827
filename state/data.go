package state

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"dev.hon.one/pfbridge/firewall"
)

// Scope - Which parts of the firewall state an update fetches.
type Scope int

const (
	// ScopeDefault - Everything except the ARP table.
	ScopeDefault Scope = iota
	// ScopeDeviceTracker - Identity plus the ARP table.
	ScopeDeviceTracker
)

func (scope Scope) String() string {
	switch scope {
	case ScopeDeviceTracker:
		return "device_tracker"
	default:
		return "default"
	}
}

// ErrEmptyResult - The firewall answered but returned nothing usable.
var ErrEmptyResult = errors.New("firewall returned no data")

// Data - Fetches snapshots from the firewall, keeping the latest one for rate computation.
type Data struct {
	client firewall.Client
	now    func() time.Time

	mutex    sync.RWMutex
	snapshot *Snapshot
}

// NewData - Create a data object without any snapshot yet.
func NewData(client firewall.Client) *Data {
	return &Data{
		client: client,
		now:    time.Now,
	}
}

// State - The latest successfully built snapshot, nil before the first success.
func (data *Data) State() *Snapshot {
	data.mutex.RLock()
	defer data.mutex.RUnlock()
	return data.snapshot
}

// Update - Fetch a fresh snapshot for the scope and publish it.
// On any failure the previously published snapshot stays in place.
func (data *Data) Update(ctx context.Context, scope Scope) (*Snapshot, error) {
	previous := data.State().withoutPrevious()

	snapshot := &Snapshot{Previous: previous}
	var err error
	if snapshot.SystemInfo, err = data.client.GetSystemInfo(ctx); err != nil {
		return nil, fmt.Errorf("failed to get system info: %w", err)
	}
	if snapshot.SystemInfo == nil {
		return nil, ErrEmptyResult
	}
	if snapshot.HostFirmwareVersion, err = data.client.GetHostFirmwareVersion(ctx); err != nil {
		return nil, fmt.Errorf("failed to get host firmware version: %w", err)
	}
	snapshot.UpdateTime = float64(data.now().UnixNano()) / float64(time.Second)

	switch scope {
	case ScopeDeviceTracker:
		if snapshot.ARPTable, err = data.client.GetARPTable(ctx, true); err != nil {
			return nil, fmt.Errorf("failed to get ARP table: %w", err)
		}
	default:
		if err := data.fetchDefault(ctx, snapshot); err != nil {
			return nil, err
		}
		snapshot.DHCPStats.Leases = ComputeLeaseStats(snapshot.DHCPLeases)
		if previous != nil {
			ComputeRates(snapshot, previous)
		}
	}

	data.mutex.Lock()
	data.snapshot = snapshot
	data.mutex.Unlock()

	log.WithFields(log.Fields{
		"scope":      scope,
		"interfaces": len(interfacesOf(snapshot)),
		"leases":     len(snapshot.DHCPLeases),
		"arp":        len(snapshot.ARPTable),
	}).Trace("Built snapshot")
	return snapshot, nil
}

func (data *Data) fetchDefault(ctx context.Context, snapshot *Snapshot) error {
	var err error
	if snapshot.Telemetry, err = data.client.GetTelemetry(ctx); err != nil {
		return fmt.Errorf("failed to get telemetry: %w", err)
	}
	if snapshot.Telemetry == nil {
		return ErrEmptyResult
	}
	if snapshot.Config, err = data.client.GetConfig(ctx); err != nil {
		return fmt.Errorf("failed to get config: %w", err)
	}
	if snapshot.Interfaces, err = data.client.GetInterfaces(ctx); err != nil {
		return fmt.Errorf("failed to get interfaces: %w", err)
	}
	if snapshot.Services, err = data.client.GetServices(ctx); err != nil {
		return fmt.Errorf("failed to get services: %w", err)
	}
	if snapshot.CARPInterfaces, err = data.client.GetCARPInterfaces(ctx); err != nil {
		return fmt.Errorf("failed to get CARP interfaces: %w", err)
	}
	if snapshot.CARPStatus, err = data.client.GetCARPStatus(ctx); err != nil {
		return fmt.Errorf("failed to get CARP status: %w", err)
	}
	if snapshot.DHCPLeases, err = data.client.GetDHCPLeases(ctx); err != nil {
		return fmt.Errorf("failed to get DHCP leases: %w", err)
	}
	return nil
}

func interfacesOf(snapshot *Snapshot) map[string]*firewall.InterfaceTelemetry {
	if snapshot.Telemetry == nil {
		return nil
	}
	return snapshot.Telemetry.Interfaces
}
