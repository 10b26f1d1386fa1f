// Package slicing classifies traffic into 5G network slices. The slice label
// rides on detection and block events for routing/display purposes only; it
// never alters the fusion logic.
package slicing

// SliceInfo describes the slice a packet stream was assigned to.
type SliceInfo struct {
	Slice           string  `json:"slice"`
	Priority        int     `json:"priority"`
	BandwidthWeight float64 `json:"bandwidth_weight"`
	Description     string  `json:"description"`
}

var definitions = map[string]SliceInfo{
	"eMBB": {
		Slice:           "eMBB",
		Priority:        2,
		BandwidthWeight: 0.50,
		Description:     "Enhanced Mobile Broadband",
	},
	"URLLC": {
		Slice:           "URLLC",
		Priority:        1,
		BandwidthWeight: 0.30,
		Description:     "Ultra Reliable Low Latency Communications",
	},
	"mMTC": {
		Slice:           "mMTC",
		Priority:        3,
		BandwidthWeight: 0.20,
		Description:     "Massive Machine Type Communications",
	},
}

// Classify picks the slice for a packet stream:
// URLLC for latency-critical traffic (high pps or ICMP), mMTC for small
// infrequent IoT-style packets, eMBB otherwise.
func Classify(packetSize int, protocol string, pps float64) SliceInfo {
	switch {
	case pps > 200 || protocol == "ICMP":
		return definitions["URLLC"]
	case packetSize < 200 && pps < 20:
		return definitions["mMTC"]
	default:
		return definitions["eMBB"]
	}
}

// Lookup returns the definition of a named slice, defaulting to eMBB for
// unknown names.
func Lookup(name string) SliceInfo {
	if info, ok := definitions[name]; ok {
		return info
	}
	return definitions["eMBB"]
}
