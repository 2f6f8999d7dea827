package state

import (
	"math"
	"strings"

	"dev.hon.one/pfbridge/firewall"
)

// ComputeLeaseStats - Count leases which have not expired, bucketed by their online field.
func ComputeLeaseStats(leases []firewall.Lease) LeaseStats {
	var stats LeaseStats
	for _, lease := range leases {
		if lease.Act == "expired" {
			continue
		}
		stats.Total++
		switch lease.Online {
		case "online":
			stats.Online++
		case "offline":
			stats.Offline++
		}
	}
	return stats
}

// ComputeRates - Fill in per-interface rates of the current snapshot from the counter deltas against the previous one.
// Interfaces missing from the previous snapshot are skipped, as are counters missing on either side.
// Every rate is recomputed on every call.
func ComputeRates(current *Snapshot, previous *Snapshot) {
	if current == nil || previous == nil || current.Telemetry == nil {
		return
	}
	elapsed := current.UpdateTime - previous.UpdateTime
	if elapsed <= 0 {
		return
	}

	for name, iface := range current.Telemetry.Interfaces {
		previousInterface := previous.Interface(name)
		if previousInterface == nil {
			continue
		}
		for _, counter := range firewall.CounterFields {
			currentValue, currentFound := iface.Counters[counter]
			previousValue, previousFound := previousInterface.Counters[counter]
			if !currentFound || !previousFound {
				continue
			}
			property, value := counterRate(counter, currentValue, previousValue, elapsed)
			if iface.Rates == nil {
				iface.Rates = make(map[string]int64)
			}
			iface.Rates[property] = value
		}
	}
}

// counterRate - Rate field name and value for a counter.
// Packets per second, or bytes per second divided by 1000, rounded half to even.
func counterRate(counter string, current float64, previous float64, elapsed float64) (string, int64) {
	rate := math.Abs(current-previous) / elapsed
	if strings.Contains(counter, "pkts") {
		return counter + "_packets_per_second", int64(math.RoundToEven(rate))
	}
	return counter + "_kilobytes_per_second", int64(math.RoundToEven(rate / 1000))
}
