package workflow

import "fmt"

// Capability 复核许可位。po/delivery/split三个能力位的组合完整决定
// 存储字段direct_action与is_split_approved，编码/解码成对出现，
// 非法组合不可表示。
type Capability uint8

const (
	CapPO Capability = 1 << iota
	CapDelivery
	CapSplit
)

// 存储层direct_action取值
const (
	DirectNone            = ""
	DirectPO              = "po"
	DirectDelivery        = "delivery"
	DirectAll             = "all"
	DirectSplitPO         = "split_po"
	DirectSplitDelivery   = "split_delivery"
	DirectSplitPODelivery = "split_po_delivery"
)

// Has 判断是否包含某能力位
func (c Capability) Has(bit Capability) bool {
	return c&bit != 0
}

// IsZero 无任何能力位
func (c Capability) IsZero() bool {
	return c == 0
}

// ParseCapability 解析单个能力名
func ParseCapability(name string) (Capability, error) {
	switch name {
	case "po":
		return CapPO, nil
	case "delivery":
		return CapDelivery, nil
	case "split":
		return CapSplit, nil
	default:
		return 0, fmt.Errorf("unknown capability %q", name)
	}
}

// Encode 将能力位编码为存储值。仅split位授予时direct_action保持空，
// 只置is_split_approved标志。
func (c Capability) Encode() (directAction string, splitApproved bool) {
	splitApproved = c.Has(CapSplit)
	po, dl := c.Has(CapPO), c.Has(CapDelivery)

	switch {
	case po && dl && splitApproved:
		directAction = DirectSplitPODelivery
	case po && dl:
		directAction = DirectAll
	case po && splitApproved:
		directAction = DirectSplitPO
	case dl && splitApproved:
		directAction = DirectSplitDelivery
	case po:
		directAction = DirectPO
	case dl:
		directAction = DirectDelivery
	default:
		directAction = DirectNone
	}
	return directAction, splitApproved
}

// DecodeCapability 从存储值还原能力位
func DecodeCapability(directAction string, splitApproved bool) Capability {
	var c Capability
	switch directAction {
	case DirectPO:
		c = CapPO
	case DirectDelivery:
		c = CapDelivery
	case DirectAll:
		c = CapPO | CapDelivery
	case DirectSplitPO:
		c = CapPO | CapSplit
	case DirectSplitDelivery:
		c = CapDelivery | CapSplit
	case DirectSplitPODelivery:
		c = CapPO | CapDelivery | CapSplit
	}
	if splitApproved {
		c |= CapSplit
	}
	return c
}
