package capture

import (
	"context"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	gopsnet "github.com/shirou/gopsutil/v3/net"
)

// SensorProvider is the device sensor boundary. Implementations deliver
// point-in-time snapshots; stream events (motion/touch/keystroke) arrive through
// Recorder.RecordEvent callbacks instead.
//
// A denied or unavailable sensor is reported as sentinel data on the returned
// snapshot, not as an error: a missing sensor must never abort an otherwise
// valid session.
type SensorProvider interface {
	DeviceBehavior(ctx context.Context) *DeviceBehavior
	NetworkBehavior(ctx context.Context) *NetworkBehavior
	LocationBehavior(ctx context.Context) *LocationBehavior
}

// HostProvider captures device and network snapshots from the host the process
// runs on. It has no location source, so LocationBehavior always carries the
// PermissionDenied sentinel.
type HostProvider struct{}

func (HostProvider) DeviceBehavior(ctx context.Context) *DeviceBehavior {
	d := &DeviceBehavior{
		Timestamp: time.Now().UnixMilli(),
	}
	info, err := host.InfoWithContext(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("host info unavailable, capturing empty device snapshot")
	} else {
		d.Platform = info.Platform
		d.OSName = info.OS
		d.OSVersion = info.PlatformVersion
		d.Model = info.KernelArch
		d.Fingerprint = info.HostID
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		d.TotalMemoryMB = vm.Total / (1 << 20)
	}
	return d
}

func (HostProvider) NetworkBehavior(ctx context.Context) *NetworkBehavior {
	n := &NetworkBehavior{
		Timestamp: time.Now().UnixMilli(),
		// no radio on a host machine; the field is an explicit empty sentinel
		SIMOperator:    "",
		ConnectionType: "ethernet",
	}
	ifaces, err := gopsnet.InterfacesWithContext(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("network interfaces unavailable")
		return n
	}
	for _, iface := range ifaces {
		if strings.HasPrefix(iface.Name, "lo") {
			continue
		}
		n.Interfaces = append(n.Interfaces, iface.Name)
		if n.IPAddress == "" && len(iface.Addrs) > 0 {
			n.IPAddress = iface.Addrs[0].Addr
		}
	}
	return n
}

func (HostProvider) LocationBehavior(ctx context.Context) *LocationBehavior {
	return &LocationBehavior{
		Timestamp:        time.Now().UnixMilli(),
		PermissionDenied: true,
	}
}

// CaptureSnapshots fills the recorder's once-per-session snapshots from the
// provider. Failures inside the provider have already been absorbed into
// sentinel fields by this point.
func CaptureSnapshots(ctx context.Context, p SensorProvider, r *Recorder) {
	r.SetDeviceBehavior(p.DeviceBehavior(ctx))
	r.SetNetworkBehavior(p.NetworkBehavior(ctx))
	r.SetLocationBehavior(p.LocationBehavior(ctx))
}
