package ble

import (
	"encoding/binary"
	"fmt"
	"iter"
)

// DeviceAddress is a 48-bit BLE device address, most significant byte first.
type DeviceAddress [6]byte

func (a DeviceAddress) String() string {
	return fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X", a[0], a[1], a[2], a[3], a[4], a[5])
}

// PDUType is the advertising channel PDU type from the packet header.
type PDUType uint8

const (
	PDUAdvInd        PDUType = 0x0
	PDUAdvDirectInd  PDUType = 0x1
	PDUAdvNonconnInd PDUType = 0x2
	PDUScanReq       PDUType = 0x3
	PDUScanRsp       PDUType = 0x4
	PDUConnectReq    PDUType = 0x5
	PDUAdvScanInd    PDUType = 0x6
)

func (t PDUType) String() string {
	switch t {
	case PDUAdvInd:
		return "ADV_IND"
	case PDUAdvDirectInd:
		return "ADV_DIRECT_IND"
	case PDUAdvNonconnInd:
		return "ADV_NONCONN_IND"
	case PDUScanReq:
		return "SCAN_REQ"
	case PDUScanRsp:
		return "SCAN_RSP"
	case PDUConnectReq:
		return "CONNECT_REQ"
	case PDUAdvScanInd:
		return "ADV_SCAN_IND"
	default:
		return fmt.Sprintf("PDU(0x%X)", uint8(t))
	}
}

// IsBeacon reports whether the PDU carries broadcast advertising data.
func (t PDUType) IsBeacon() bool {
	switch t {
	case PDUAdvInd, PDUAdvNonconnInd, PDUAdvScanInd:
		return true
	}
	return false
}

// ADType identifies an advertising data element.
type ADType uint8

const (
	ADFlags            ADType = 0x01
	ADIncomplete16     ADType = 0x02
	ADComplete16       ADType = 0x03
	ADShortName        ADType = 0x08
	ADCompleteName     ADType = 0x09
	ADTxPower          ADType = 0x0A
	ADServiceData16    ADType = 0x16
	ADManufacturerData ADType = 0xFF
)

// ADStructure is one length-type-value element of advertising data. Data
// aliases the packet buffer and is only valid during the callback.
type ADStructure struct {
	Type ADType
	Data []byte
}

// CompanyID returns the Bluetooth SIG company identifier of a manufacturer
// data element.
func (a ADStructure) CompanyID() (uint16, bool) {
	if a.Type != ADManufacturerData || len(a.Data) < 2 {
		return 0, false
	}
	return binary.LittleEndian.Uint16(a.Data), true
}

// MaxADPayload is the legacy advertising data limit.
const MaxADPayload = 31

// Packet is a received advertising PDU. It is a fixed-size value so it can
// sit in the radio buffer without allocation.
type Packet struct {
	Type      PDUType
	TypeKnown bool // host adapters do not always report the PDU type
	Address   DeviceAddress
	Payload   [MaxADPayload]byte
	Len       uint8
	RSSI      int8
	HasRSSI   bool
	CRCOK     bool
}

// SetPayload copies raw advertising data into the packet, truncating at
// MaxADPayload. It returns the number of bytes kept.
func (p *Packet) SetPayload(b []byte) int {
	n := copy(p.Payload[:], b)
	p.Len = uint8(n)
	return n
}

// AppendAD appends one element. It reports false, leaving the packet
// unchanged, when the element does not fit.
func (p *Packet) AppendAD(t ADType, data []byte) bool {
	need := 2 + len(data)
	if int(p.Len)+need > MaxADPayload || len(data) > 254 {
		return false
	}
	i := int(p.Len)
	p.Payload[i] = byte(1 + len(data))
	p.Payload[i+1] = byte(t)
	copy(p.Payload[i+2:], data)
	p.Len += uint8(need)
	return true
}

// ADStructures iterates the advertising data elements. A zero length byte
// or an element running past the payload ends the iteration.
func (p *Packet) ADStructures() iter.Seq[ADStructure] {
	return func(yield func(ADStructure) bool) {
		buf := p.Payload[:p.Len]
		for len(buf) >= 2 {
			n := int(buf[0])
			if n == 0 || n+1 > len(buf) {
				return
			}
			if !yield(ADStructure{Type: ADType(buf[1]), Data: buf[2 : n+1]}) {
				return
			}
			buf = buf[n+1:]
		}
	}
}

// Metadata accompanies every beacon handed to a ScanCallback.
type Metadata struct {
	Timestamp  Instant
	Channel    uint8
	RSSI       int8 // dBm, valid when HasRSSI
	HasRSSI    bool
	PDUType    PDUType
	HasPDUType bool
}
