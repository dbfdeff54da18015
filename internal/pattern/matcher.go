package pattern

import (
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/Veraticus/the-rent-must-flow/internal/model"
)

type evaluation struct {
	kind     MatchKind
	length   int
	ratio    float64
	matched  bool
	rejected bool
}

// evaluate applies the first applicable matching case to a trimmed label and pattern.
func evaluate(name, pattern string, isPrefixMatch bool) evaluation {
	patternLen := utf8.RuneCountInString(pattern)

	if name == pattern {
		return evaluation{kind: KindExact, length: patternLen, ratio: 1, matched: true}
	}

	if strings.Contains(name, prlvSepa) && strings.Contains(pattern, prlvSepa) {
		return evaluation{
			kind:    KindPrlvSepa,
			length:  patternLen,
			ratio:   lengthRatio(patternLen, name),
			matched: strings.HasPrefix(name, pattern),
		}
	}

	if pattern == virStripe && strings.Contains(name, virStripe) {
		return evaluation{kind: KindVirStripe, length: patternLen, ratio: lengthRatio(patternLen, name), matched: true}
	}

	if isPrefixMatch && strings.HasPrefix(name, pattern) {
		return gated(KindPrefix, patternLen, name)
	}

	if strings.Contains(name, pattern) {
		return gated(KindSubstring, patternLen, name)
	}

	return evaluation{}
}

func gated(kind MatchKind, patternLen int, name string) evaluation {
	ratio := lengthRatio(patternLen, name)
	ok := ratio >= MinLengthRatio
	return evaluation{kind: kind, length: patternLen, ratio: ratio, matched: ok, rejected: !ok}
}

func lengthRatio(patternLen int, name string) float64 {
	nameLen := utf8.RuneCountInString(name)
	if nameLen == 0 {
		return 0
	}
	return float64(patternLen) / float64(nameLen)
}

// Matches reports whether a single rule name matches a transaction label.
// It uses exactly the same cases and threshold as FindBestMatch.
func Matches(transactionName, ruleName string, isPrefixMatch bool) bool {
	return evaluate(strings.TrimSpace(transactionName), strings.TrimSpace(ruleName), isPrefixMatch).matched
}

// Resolve evaluates every rule against the label and picks the unique longest match.
func Resolve(transactionName string, rules []model.MappingRule) Resolution {
	name := strings.TrimSpace(transactionName)

	var res Resolution
	best := -1
	tied := false
	for _, rule := range rules {
		ev := evaluate(name, rule.Pattern(), rule.IsPrefixMatch)
		c := Candidate{Rule: rule, Kind: ev.kind, Length: ev.length, Ratio: ev.ratio}

		if ev.rejected {
			slog.Debug("Rule skipped below length ratio",
				"rule", rule.Name,
				"transaction", name,
				"ratio", ev.ratio)
			res.Rejected = append(res.Rejected, c)
			continue
		}
		if !ev.matched {
			continue
		}

		res.Candidates = append(res.Candidates, c)
		switch {
		case ev.length > best:
			best = ev.length
			tied = false
		case ev.length == best:
			tied = true
		}
	}

	if len(res.Candidates) == 0 {
		return res
	}
	if tied {
		res.Ambiguous = true
		return res
	}

	for i := range res.Candidates {
		if res.Candidates[i].Length == best {
			winner := res.Candidates[i].Rule
			res.Rule = &winner
			break
		}
	}
	return res
}

// FindBestMatch returns the rule that should classify the label, or nil when no rule
// matches or the longest matches tie.
func FindBestMatch(transactionName string, rules []model.MappingRule) *model.MappingRule {
	res := Resolve(transactionName, rules)
	if res.Ambiguous {
		slog.Debug("Ambiguous rule match left unassigned",
			"transaction", strings.TrimSpace(transactionName),
			"candidates", len(res.Conflicting()))
	}
	return res.Rule
}
