package model

import (
	"fmt"
	"strings"
)

// Level3 is the third, most general tier of the accounting taxonomy.
// The empty value means "no level 3" and is stored as NULL.
type Level3 string

// Level 3 values. Anything else is rejected.
const (
	Level3None               Level3 = ""
	Level3Passif             Level3 = "Passif"
	Level3Produits           Level3 = "Produits"
	Level3Emprunt            Level3 = "Emprunt"
	Level3ChargesDeductibles Level3 = "Charges Déductibles"
	Level3Actif              Level3 = "Actif"
)

// Level3Values lists every non-empty Level3 value in display order.
var Level3Values = []Level3{
	Level3Passif,
	Level3Produits,
	Level3Emprunt,
	Level3ChargesDeductibles,
	Level3Actif,
}

// IsSet reports whether l carries a value.
func (l Level3) IsSet() bool {
	return l != Level3None
}

// IsValid reports whether l is either unset or one of the known values.
func (l Level3) IsValid() bool {
	if !l.IsSet() {
		return true
	}
	for _, v := range Level3Values {
		if l == v {
			return true
		}
	}
	return false
}

// String returns the raw value.
func (l Level3) String() string {
	return string(l)
}

// ParseLevel3 converts user input into a Level3. Blank input yields Level3None.
func ParseLevel3(s string) (Level3, error) {
	l := Level3(strings.TrimSpace(s))
	if !l.IsValid() {
		return Level3None, fmt.Errorf("unknown level 3 value %q", s)
	}
	return l, nil
}

// Levels is a (level_1, level_2, level_3) classification triple.
type Levels struct {
	Level1 string `json:"level_1" yaml:"level_1"`
	Level2 string `json:"level_2" yaml:"level_2"`
	Level3 Level3 `json:"level_3,omitempty" yaml:"level_3,omitempty"`
}

// IsEmpty reports whether no level is set, i.e. the transaction is unassigned.
func (l Levels) IsEmpty() bool {
	return l.Level1 == "" && l.Level2 == "" && !l.Level3.IsSet()
}

// Normalize trims surrounding whitespace from every level.
func (l Levels) Normalize() Levels {
	return Levels{
		Level1: strings.TrimSpace(l.Level1),
		Level2: strings.TrimSpace(l.Level2),
		Level3: Level3(strings.TrimSpace(string(l.Level3))),
	}
}

func (l Levels) String() string {
	if l.IsEmpty() {
		return "unassigned"
	}
	if !l.Level3.IsSet() {
		return fmt.Sprintf("%s / %s", l.Level1, l.Level2)
	}
	return fmt.Sprintf("%s / %s / %s", l.Level1, l.Level2, l.Level3)
}
