package strength

import (
	"unicode/utf16"
)

// Label is the qualitative rating of a score
type Label int

const (
	VeryWeak Label = iota
	Weak
	Moderate
	Strong
	VeryStrong
)

// String returns the lowercase label name
func (l Label) String() string {
	switch l {
	case VeryWeak:
		return "very weak"
	case Weak:
		return "weak"
	case Moderate:
		return "moderate"
	case Strong:
		return "strong"
	case VeryStrong:
		return "very strong"
	}
	return "unknown"
}

// Feedback returns the advice shown next to the meter
func (l Label) Feedback() string {
	switch l {
	case VeryWeak:
		return "Very weak - easily guessable"
	case Weak:
		return "Weak - consider a stronger password"
	case Moderate:
		return "Moderate - could be stronger"
	case Strong:
		return "Strong - good password"
	}
	return "Very strong - excellent password"
}

// LabelFor maps a 0..100 score onto a label
func LabelFor(score int) Label {
	switch {
	case score < 30:
		return VeryWeak
	case score < 50:
		return Weak
	case score < 70:
		return Moderate
	case score < 90:
		return Strong
	}
	return VeryStrong
}

// Result is the outcome of scoring one password
type Result struct {
	Value int
	Label Label
}

// Score rates a password from 0 to 100. It is a pure function of its input.
func Score(password string) Result {
	value := scoreValue(password)
	return Result{Value: value, Label: LabelFor(value)}
}

// Length counts UTF-16 code units, so characters outside the Basic
// Multilingual Plane count twice
func Length(pw string) int {
	n := 0
	for _, r := range pw {
		if l := utf16.RuneLen(r); l > 0 {
			n += l
		} else {
			n++
		}
	}
	return n
}

func scoreValue(pw string) int {
	if pw == "" {
		return 0
	}

	score := 0

	length := Length(pw)
	if length >= 8 {
		score += 20
	}
	if length >= 12 {
		score += 10
	}

	var lower, upper, digit, other bool
	onlyAlpha, onlyDigits := true, true
	for _, r := range pw {
		switch {
		case r >= 'a' && r <= 'z':
			lower = true
			onlyDigits = false
		case r >= 'A' && r <= 'Z':
			upper = true
			onlyDigits = false
		case r >= '0' && r <= '9':
			digit = true
			onlyAlpha = false
		default:
			other = true
			onlyAlpha = false
			onlyDigits = false
		}
	}

	if lower {
		score += 10
	}
	if upper {
		score += 10
	}
	if digit {
		score += 10
	}
	if other {
		score += 20
	}

	if onlyAlpha {
		score -= 10
	}
	if onlyDigits {
		score -= 10
	}
	if hasRepeatRun(pw, 3) {
		score -= 10
	}

	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// hasRepeatRun reports a run of at least n identical characters. Line
// terminators never start or extend a run.
func hasRepeatRun(pw string, n int) bool {
	var prev rune
	run := 0
	for _, r := range pw {
		if isLineTerminator(r) {
			run = 0
			continue
		}
		if run > 0 && r == prev {
			run++
		} else {
			run = 1
		}
		if run >= n {
			return true
		}
		prev = r
	}
	return false
}

func isLineTerminator(r rune) bool {
	return r == '\n' || r == '\r' || r == '\u2028' || r == '\u2029'
}
