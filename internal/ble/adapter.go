package ble

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"
	"tinygo.org/x/bluetooth"
)

// Source feeds received advertisements into a Radio.
type Source interface {
	Start(ctx context.Context, radio *Radio) error
	Stop()
}

// AdapterSource receives advertisements from a host Bluetooth adapter.
type AdapterSource struct {
	adapter *bluetooth.Adapter
	name    string
	logger  *zap.Logger
	running atomic.Bool
}

// NewAdapterSource creates a source for the default adapter. name is only
// used for diagnostics; the host stack picks the adapter.
func NewAdapterSource(name string, logger *zap.Logger) *AdapterSource {
	return &AdapterSource{
		adapter: bluetooth.DefaultAdapter,
		name:    name,
		logger:  logger,
	}
}

// Start enables the adapter and begins scanning in a goroutine. Enable
// failure is returned to the caller; the adapter is then unusable.
func (s *AdapterSource) Start(ctx context.Context, radio *Radio) error {
	if err := s.adapter.Enable(); err != nil {
		return fmt.Errorf("failed to enable BLE adapter %s: %w (try running with sudo or setcap cap_net_admin+ep)", s.name, err)
	}

	s.running.Store(true)
	go func() {
		err := s.adapter.Scan(func(adapter *bluetooth.Adapter, result bluetooth.ScanResult) {
			if !s.running.Load() {
				return
			}
			radio.Deliver(packetFromResult(result))
		})
		if err != nil && s.running.Load() {
			s.logger.Error("adapter scan stopped", zap.String("adapter", s.name), zap.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	s.logger.Info("adapter scanning", zap.String("adapter", s.name))
	return nil
}

// Stop halts scanning.
func (s *AdapterSource) Stop() {
	if s.running.Swap(false) {
		_ = s.adapter.StopScan()
	}
}

// packetFromResult converts a host scan result. The host stack does not
// report the PDU type, and an RSSI of 0 means none was measured.
func packetFromResult(result bluetooth.ScanResult) Packet {
	pkt := Packet{
		Address: addressFromString(result.Address.String()),
		CRCOK:   true,
	}

	if result.RSSI != 0 {
		pkt.RSSI = clampRSSI(result.RSSI)
		pkt.HasRSSI = true
	}

	if raw := result.Bytes(); len(raw) > 0 {
		pkt.SetPayload(raw)
		return pkt
	}

	// Rebuild advertising data from the parsed fields.
	for _, m := range result.ManufacturerData() {
		data := make([]byte, 2+len(m.Data))
		binary.LittleEndian.PutUint16(data, m.CompanyID)
		copy(data[2:], m.Data)
		if !pkt.AppendAD(ADManufacturerData, data) {
			break
		}
	}
	if name := result.LocalName(); name != "" {
		pkt.AppendAD(ADCompleteName, []byte(name))
	}
	return pkt
}

// addressFromString parses a MAC address. Platforms that report opaque
// identifiers (CoreBluetooth UUIDs) get a stable address derived by hashing.
func addressFromString(s string) DeviceAddress {
	var addr DeviceAddress
	if mac, err := bluetooth.ParseMAC(s); err == nil {
		// MAC is stored least significant byte first.
		for i := range addr {
			addr[i] = mac[len(mac)-1-i]
		}
		return addr
	}
	h := sha256.Sum256([]byte(s))
	copy(addr[:], h[:len(addr)])
	return addr
}

func clampRSSI(v int16) int8 {
	if v < -128 {
		return -128
	}
	if v > 127 {
		return 127
	}
	return int8(v)
}
