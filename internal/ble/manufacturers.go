package ble

import "iter"

// LookupManufacturer returns a human-readable name for a Bluetooth SIG company ID.
// See: https://www.bluetooth.com/specifications/assigned-numbers/
func LookupManufacturer(companyID uint16) string {
	if name, ok := companyNames[companyID]; ok {
		return name
	}
	return ""
}

// Vendor returns the manufacturer named by the first manufacturer data
// element, or "" when there is none or the company is unknown.
func Vendor(data iter.Seq[ADStructure]) string {
	for ad := range data {
		if id, ok := ad.CompanyID(); ok {
			return LookupManufacturer(id)
		}
	}
	return ""
}

// Beacon-heavy vendors first; the list is not exhaustive.
var companyNames = map[uint16]string{
	0x004C: "Apple",
	0x0006: "Microsoft",
	0x00E0: "Google",
	0x0075: "Samsung",
	0x02FF: "Tile",
	0x0059: "Nordic",
	0x0499: "Ruuvi",
	0x0822: "Tuya/Govee",
	0x015D: "Espressif",
	0x000D: "Texas Inst.",
	0x0131: "JBL",
	0x0157: "Huawei",
	0x0310: "Xiaomi",
	0x038F: "Garmin",
	0x03DA: "Fitbit",
	0x0171: "Amazon",
	0x0958: "IKEA",
}
