package workflow

import "testing"

func TestCapabilityEncodeDecode(t *testing.T) {
	cases := []struct {
		caps          Capability
		directAction  string
		splitApproved bool
	}{
		{0, DirectNone, false},
		{CapPO, DirectPO, false},
		{CapDelivery, DirectDelivery, false},
		{CapSplit, DirectNone, true},
		{CapPO | CapDelivery, DirectAll, false},
		{CapPO | CapSplit, DirectSplitPO, true},
		{CapDelivery | CapSplit, DirectSplitDelivery, true},
		{CapPO | CapDelivery | CapSplit, DirectSplitPODelivery, true},
	}

	for _, c := range cases {
		directAction, splitApproved := c.caps.Encode()
		if directAction != c.directAction || splitApproved != c.splitApproved {
			t.Errorf("caps %b: encoded (%q, %v), want (%q, %v)",
				c.caps, directAction, splitApproved, c.directAction, c.splitApproved)
		}
		if got := DecodeCapability(directAction, splitApproved); got != c.caps {
			t.Errorf("caps %b: decode round trip gave %b", c.caps, got)
		}
	}
}

// 逐次授予split → po → delivery，每步编码都必须落在合法组合上
func TestCapabilitySequentialGrants(t *testing.T) {
	var caps Capability

	caps |= CapSplit
	if da, sa := caps.Encode(); da != DirectNone || !sa {
		t.Errorf("after split: got (%q, %v)", da, sa)
	}

	caps |= CapPO
	if da, sa := caps.Encode(); da != DirectSplitPO || !sa {
		t.Errorf("after split+po: got (%q, %v)", da, sa)
	}

	caps |= CapDelivery
	if da, sa := caps.Encode(); da != DirectSplitPODelivery || !sa {
		t.Errorf("after split+po+delivery: got (%q, %v)", da, sa)
	}
}

func TestParseCapability(t *testing.T) {
	for name, want := range map[string]Capability{
		"po":       CapPO,
		"delivery": CapDelivery,
		"split":    CapSplit,
	} {
		got, err := ParseCapability(name)
		if err != nil || got != want {
			t.Errorf("ParseCapability(%q) = %v, %v", name, got, err)
		}
	}
	if _, err := ParseCapability("teleport"); err == nil {
		t.Error("unknown capability should fail")
	}
}

func TestIntentCapability(t *testing.T) {
	i := Intent{DirectPO: true, Split: true}
	if c := i.Capability(); c != CapPO|CapSplit {
		t.Errorf("intent capability = %b", c)
	}
	if !i.Capability().Has(CapPO) || i.Capability().Has(CapDelivery) {
		t.Error("capability bits mismatch")
	}
}
