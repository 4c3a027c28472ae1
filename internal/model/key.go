package model

// Key is a physical key (or set of identical duplicates) that can be lent out.
type Key struct {
	Name         string `json:"key_name"`
	Count        int    `json:"count"`
	KeyType      string `json:"key_type"`
	HardwareType string `json:"hardware_type"`
}
