// Package pattern resolves which mapping rule classifies a bank transaction label.
package pattern

import "github.com/Veraticus/the-rent-must-flow/internal/model"

// MinLengthRatio is the smallest |pattern|/|label| accepted for prefix and substring matches.
const MinLengthRatio = 0.70

// Labels whose payment processor formats get dedicated handling.
const (
	prlvSepa  = "PRLV SEPA"
	virStripe = "VIR STRIPE"
)

// MatchKind names the case under which a rule matched a label.
type MatchKind string

// Match kinds, in evaluation order.
const (
	KindExact     MatchKind = "exact"
	KindPrlvSepa  MatchKind = "prlv-sepa"
	KindVirStripe MatchKind = "vir-stripe"
	KindPrefix    MatchKind = "prefix"
	KindSubstring MatchKind = "substring"
)

// Candidate is a rule evaluated against one label.
type Candidate struct {
	Kind   MatchKind
	Rule   model.MappingRule
	Length int
	Ratio  float64
}

// Resolution explains the outcome of matching a label against a rule list.
// Rule is nil when nothing matched or when the longest matches tie.
type Resolution struct {
	Rule       *model.MappingRule
	Candidates []Candidate // every matching rule
	Rejected   []Candidate // rules that contain the label's prefix or substring but fail the ratio gate
	Ambiguous  bool
}

// Conflicting returns the candidates sharing the winning length when the resolution is ambiguous.
func (r Resolution) Conflicting() []Candidate {
	if !r.Ambiguous {
		return nil
	}
	best := 0
	for _, c := range r.Candidates {
		if c.Length > best {
			best = c.Length
		}
	}
	var out []Candidate
	for _, c := range r.Candidates {
		if c.Length == best {
			out = append(out, c)
		}
	}
	return out
}
