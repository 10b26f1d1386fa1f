package slicing

import "testing"

func TestClassify(t *testing.T) {
	tests := []struct {
		name       string
		packetSize int
		protocol   string
		pps        float64
		want       string
	}{
		{"high rate", 1400, "TCP", 500, "URLLC"},
		{"icmp", 84, "ICMP", 1, "URLLC"},
		{"small and slow", 100, "UDP", 5, "mMTC"},
		{"bulk transfer", 1400, "TCP", 50, "eMBB"},
		{"small but fast", 100, "UDP", 100, "eMBB"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.packetSize, tt.protocol, tt.pps)
			if got.Slice != tt.want {
				t.Errorf("Classify(%d, %s, %f) = %s, want %s",
					tt.packetSize, tt.protocol, tt.pps, got.Slice, tt.want)
			}
		})
	}
}

func TestLookup(t *testing.T) {
	if got := Lookup("URLLC"); got.Priority != 1 {
		t.Errorf("URLLC priority = %d, want 1", got.Priority)
	}
	if got := Lookup("nonsense"); got.Slice != "eMBB" {
		t.Errorf("unknown slice = %s, want eMBB default", got.Slice)
	}
}
