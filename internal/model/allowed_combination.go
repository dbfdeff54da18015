package model

// AllowedCombination is a whitelisted classification triple of a property.
// Hardcoded entries come from the reference list and cannot be deleted.
type AllowedCombination struct {
	Levels      Levels `json:"levels"`
	ID          int64  `json:"id"`
	PropertyID  int64  `json:"property_id"`
	IsHardcoded bool   `json:"is_hardcoded"`
}
