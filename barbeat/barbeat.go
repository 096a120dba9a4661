// Package barbeat converts between absolute host beats (quarter notes) and
// musical bar|beat notation for a given time signature.
//
// Positions are 1-indexed ("1|1" is the very first beat). Durations are
// 0-indexed ("0:0" is no time at all, "2:0" is two bars). A musical beat is
// one denominator unit, so in 6/8 a beat is an eighth note and converts to
// half a host beat.
package barbeat

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"regexp"
	"strconv"
	"strings"
)

var (
	// ErrInvalidFormat is returned for strings that do not follow the
	// bar|beat or bars:beats grammar, or whose components are out of range.
	ErrInvalidFormat = errors.New("invalid musical time format")
	// ErrInvalidTimeSignature is returned for a numerator below 1 or a
	// denominator that is not a power of two.
	ErrInvalidTimeSignature = errors.New("invalid time signature")
)

const (
	// encodedDecimals is the number of decimals kept when formatting beats.
	encodedDecimals = 3
	thousandths     = 1000
	maxDenominator  = 128
)

var (
	positionPattern = regexp.MustCompile(`^(-?\d+)\|(-?[0-9./+]+)$`)
	durationPattern = regexp.MustCompile(`^(-?\d+):(-?[0-9./+]+)$`)
	beatPattern     = regexp.MustCompile(`^-?(\d+(\.\d+)?|\d+/\d+|\d+\+\d+/\d+)$`)
)

// TimeSignature is a numerator/denominator pair such as 4/4 or 6/8.
type TimeSignature struct {
	Numerator   int `json:"numerator" yaml:"numerator"`
	Denominator int `json:"denominator" yaml:"denominator"`
}

// CommonTime is 4/4.
var CommonTime = TimeSignature{Numerator: 4, Denominator: 4}

// Validate checks that the signature can be used for conversions.
func (ts TimeSignature) Validate() error {
	return validateTimeSignature(ts.Numerator, ts.Denominator)
}

// BeatsPerBar returns the length of one bar in host beats.
func (ts TimeSignature) BeatsPerBar() float64 {
	return float64(ts.Numerator) * 4 / float64(ts.Denominator)
}

func (ts TimeSignature) String() string {
	return fmt.Sprintf("%d/%d", ts.Numerator, ts.Denominator)
}

// PositionToBeats is the method form of the package-level PositionToBeats.
func (ts TimeSignature) PositionToBeats(s string) (float64, error) {
	return PositionToBeats(s, ts.Numerator, ts.Denominator)
}

// BeatsToPosition is the method form of the package-level BeatsToPosition.
func (ts TimeSignature) BeatsToPosition(beats float64) (string, error) {
	return BeatsToPosition(beats, ts.Numerator, ts.Denominator)
}

// DurationToBeats is the method form of the package-level DurationToBeats.
func (ts TimeSignature) DurationToBeats(s string) (float64, error) {
	return DurationToBeats(s, ts.Numerator, ts.Denominator)
}

// BeatsToDuration is the method form of the package-level BeatsToDuration.
func (ts TimeSignature) BeatsToDuration(beats float64) (string, error) {
	return BeatsToDuration(beats, ts.Numerator, ts.Denominator)
}

// PositionToBeats parses a "bar|beat" position into absolute host beats.
// Bar and beat are both 1-indexed; the beat may be fractional, e.g.
// "3|2.5", "1|4/3" or "2|1+1/3".
func PositionToBeats(s string, numerator, denominator int) (float64, error) {
	if err := validateTimeSignature(numerator, denominator); err != nil {
		return 0, err
	}
	bar, beat, err := splitNotation(positionPattern, s, "bar|beat")
	if err != nil {
		return 0, err
	}
	if bar < 1 {
		return 0, fmt.Errorf("%w: bar must be >= 1 in %q", ErrInvalidFormat, s)
	}
	if beat.Cmp(big.NewRat(1, 1)) < 0 {
		return 0, fmt.Errorf("%w: beat must be >= 1 in %q", ErrInvalidFormat, s)
	}

	// ((bar-1) * numerator + (beat-1)) * 4/denominator
	musical := new(big.Rat).SetInt64((bar - 1) * int64(numerator))
	musical.Add(musical, new(big.Rat).Sub(beat, big.NewRat(1, 1)))
	return ratToFloat(musical.Mul(musical, beatFactor(denominator))), nil
}

// DurationToBeats parses a "bars:beats" duration into host beats. Both
// components are 0-indexed and the beats may be fractional.
func DurationToBeats(s string, numerator, denominator int) (float64, error) {
	if err := validateTimeSignature(numerator, denominator); err != nil {
		return 0, err
	}
	bars, beats, err := splitNotation(durationPattern, s, "bars:beats")
	if err != nil {
		return 0, err
	}
	if bars < 0 {
		return 0, fmt.Errorf("%w: bars must be >= 0 in %q", ErrInvalidFormat, s)
	}
	if beats.Sign() < 0 {
		return 0, fmt.Errorf("%w: beats must be >= 0 in %q", ErrInvalidFormat, s)
	}

	musical := new(big.Rat).SetInt64(bars * int64(numerator))
	musical.Add(musical, beats)
	return ratToFloat(musical.Mul(musical, beatFactor(denominator))), nil
}

// BeatsToPosition formats absolute host beats as a "bar|beat" position.
func BeatsToPosition(beats float64, numerator, denominator int) (string, error) {
	bar, rem, err := splitBeats(beats, numerator, denominator)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d|%s", bar+1, formatThousandths(rem+thousandths)), nil
}

// BeatsToDuration formats a host-beat length as a "bars:beats" duration.
func BeatsToDuration(beats float64, numerator, denominator int) (string, error) {
	bars, rem, err := splitBeats(beats, numerator, denominator)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d:%s", bars, formatThousandths(rem)), nil
}

// splitBeats rounds beats to the encoded precision in musical units first,
// and only then divides into whole bars, so a value just below a barline
// never produces a beat component past the end of the bar.
func splitBeats(beats float64, numerator, denominator int) (int64, int64, error) {
	if err := validateTimeSignature(numerator, denominator); err != nil {
		return 0, 0, err
	}
	if math.IsNaN(beats) || math.IsInf(beats, 0) {
		return 0, 0, fmt.Errorf("%w: beats must be finite, got %v", ErrInvalidFormat, beats)
	}
	musical := beats * float64(denominator) / 4
	t := int64(math.Round(musical * thousandths))
	if t < 0 {
		return 0, 0, fmt.Errorf("%w: beats must be >= 0, got %v", ErrInvalidFormat, beats)
	}
	perBar := int64(numerator) * thousandths
	return t / perBar, t % perBar, nil
}

func splitNotation(pattern *regexp.Regexp, s, grammar string) (int64, *big.Rat, error) {
	m := pattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return 0, nil, fmt.Errorf("%w: %q does not match %s", ErrInvalidFormat, s, grammar)
	}
	whole, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %q: %v", ErrInvalidFormat, s, err)
	}
	beat, err := parseBeatValue(m[2])
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %q: %v", ErrInvalidFormat, s, err)
	}
	return whole, beat, nil
}

// parseBeatValue accepts "3", "2.5", "4/3" and "1+1/3".
func parseBeatValue(s string) (*big.Rat, error) {
	if !beatPattern.MatchString(s) {
		return nil, fmt.Errorf("bad beat value %q", s)
	}
	negative := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")

	r := new(big.Rat)
	if whole, frac, ok := strings.Cut(s, "+"); ok {
		w, okW := new(big.Rat).SetString(whole)
		f, okF := new(big.Rat).SetString(frac)
		if !okW || !okF {
			return nil, fmt.Errorf("bad beat value %q", s)
		}
		r.Add(w, f)
	} else if _, ok := r.SetString(s); !ok {
		return nil, fmt.Errorf("bad beat value %q", s)
	}
	if negative {
		r.Neg(r)
	}
	return r, nil
}

func beatFactor(denominator int) *big.Rat {
	return big.NewRat(4, int64(denominator))
}

func ratToFloat(r *big.Rat) float64 {
	f, _ := r.Float64()
	return f
}

func formatThousandths(v int64) string {
	whole, frac := v/thousandths, v%thousandths
	if frac == 0 {
		return strconv.FormatInt(whole, 10)
	}
	s := fmt.Sprintf("%d.%0*d", whole, encodedDecimals, frac)
	return strings.TrimRight(s, "0")
}

func validateTimeSignature(numerator, denominator int) error {
	if numerator < 1 {
		return fmt.Errorf("%w: numerator must be >= 1, got %d", ErrInvalidTimeSignature, numerator)
	}
	if denominator < 1 || denominator > maxDenominator || denominator&(denominator-1) != 0 {
		return fmt.Errorf("%w: denominator must be a power of two, got %d", ErrInvalidTimeSignature, denominator)
	}
	return nil
}
