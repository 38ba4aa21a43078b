package domain

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// IndicatorKind identifies a family of technical indicators.
type IndicatorKind string

const (
	IndicatorDMI       IndicatorKind = "dmi"
	IndicatorBollinger IndicatorKind = "bb"
	IndicatorRSI       IndicatorKind = "rsi"
)

// IndicatorKey identifies one parameterised indicator attached to a bar. Its
// string form ("dmi-14", "bb-20-2", "rsi-13") is the wire-level id.
type IndicatorKey struct {
	Kind   IndicatorKind
	Period int
	StdDev float64 // Bollinger only
}

// DMIKey returns the key for a directional movement index of the given period.
func DMIKey(period int) IndicatorKey {
	return IndicatorKey{Kind: IndicatorDMI, Period: period}
}

// BollingerKey returns the key for Bollinger Bands with the given period and
// standard-deviation multiplier.
func BollingerKey(period int, stdDev float64) IndicatorKey {
	return IndicatorKey{Kind: IndicatorBollinger, Period: period, StdDev: stdDev}
}

// RSIKey returns the key for a relative strength index of the given period.
func RSIKey(period int) IndicatorKey {
	return IndicatorKey{Kind: IndicatorRSI, Period: period}
}

func (k IndicatorKey) String() string {
	if k.Kind == IndicatorBollinger {
		return fmt.Sprintf("%s-%d-%s", k.Kind, k.Period, strconv.FormatFloat(k.StdDev, 'f', -1, 64))
	}
	return fmt.Sprintf("%s-%d", k.Kind, k.Period)
}

// ParseIndicatorKey parses the wire-level id produced by IndicatorKey.String.
func ParseIndicatorKey(s string) (IndicatorKey, error) {
	parts := strings.Split(s, "-")
	if len(parts) < 2 {
		return IndicatorKey{}, fmt.Errorf("invalid indicator id %q", s)
	}
	period, err := strconv.Atoi(parts[1])
	if err != nil || period <= 0 {
		return IndicatorKey{}, fmt.Errorf("invalid period in indicator id %q", s)
	}

	kind := IndicatorKind(parts[0])
	switch kind {
	case IndicatorDMI, IndicatorRSI:
		if len(parts) != 2 {
			return IndicatorKey{}, fmt.Errorf("invalid indicator id %q", s)
		}
		return IndicatorKey{Kind: kind, Period: period}, nil
	case IndicatorBollinger:
		if len(parts) != 3 {
			return IndicatorKey{}, fmt.Errorf("invalid indicator id %q", s)
		}
		stdDev, err := strconv.ParseFloat(parts[2], 64)
		if err != nil {
			return IndicatorKey{}, fmt.Errorf("invalid stddev in indicator id %q", s)
		}
		return BollingerKey(period, stdDev), nil
	default:
		return IndicatorKey{}, fmt.Errorf("unknown indicator kind %q", parts[0])
	}
}

// ---------------------------------------------------------------------------
// Indicator records
// ---------------------------------------------------------------------------

// Nil fields mean the warm-up period was insufficient for that bar.

// DMIResult holds the directional movement index values for one bar.
type DMIResult struct {
	ADX        *float64 `json:"adx"`
	DIPositive *float64 `json:"di_positive"`
	DINegative *float64 `json:"di_negative"`
}

// Ready reports whether all fields are populated.
func (r DMIResult) Ready() bool {
	return r.ADX != nil && r.DIPositive != nil && r.DINegative != nil
}

// BollingerResult holds Bollinger Band values for one bar.
type BollingerResult struct {
	Middle *float64 `json:"middle"`
	Upper  *float64 `json:"upper"`
	Lower  *float64 `json:"lower"`
}

// Ready reports whether all fields are populated.
func (r BollingerResult) Ready() bool {
	return r.Middle != nil && r.Upper != nil && r.Lower != nil
}

// RSIResult holds the relative strength index for one bar.
type RSIResult struct {
	RSI *float64 `json:"rsi"`
}

// Ready reports whether the value is populated.
func (r RSIResult) Ready() bool {
	return r.RSI != nil
}

// Float returns a pointer to v. Used to build nullable indicator fields.
func Float(v float64) *float64 {
	return &v
}

// ---------------------------------------------------------------------------
// IndicatorSet
// ---------------------------------------------------------------------------

// IndicatorSet is the per-bar collection of indicator results, keyed by
// IndicatorKey and typed per indicator kind. The zero value is empty and
// ready to use.
type IndicatorSet struct {
	dmi       map[IndicatorKey]DMIResult
	bollinger map[IndicatorKey]BollingerResult
	rsi       map[IndicatorKey]RSIResult
}

// DMI returns the DMI record stored under key.
func (s IndicatorSet) DMI(key IndicatorKey) (DMIResult, bool) {
	r, ok := s.dmi[key]
	return r, ok
}

// Bollinger returns the Bollinger record stored under key.
func (s IndicatorSet) Bollinger(key IndicatorKey) (BollingerResult, bool) {
	r, ok := s.bollinger[key]
	return r, ok
}

// RSI returns the RSI record stored under key.
func (s IndicatorSet) RSI(key IndicatorKey) (RSIResult, bool) {
	r, ok := s.rsi[key]
	return r, ok
}

// SetDMI stores a DMI record.
func (s *IndicatorSet) SetDMI(key IndicatorKey, r DMIResult) {
	if s.dmi == nil {
		s.dmi = make(map[IndicatorKey]DMIResult)
	}
	s.dmi[key] = r
}

// SetBollinger stores a Bollinger record.
func (s *IndicatorSet) SetBollinger(key IndicatorKey, r BollingerResult) {
	if s.bollinger == nil {
		s.bollinger = make(map[IndicatorKey]BollingerResult)
	}
	s.bollinger[key] = r
}

// SetRSI stores an RSI record.
func (s *IndicatorSet) SetRSI(key IndicatorKey, r RSIResult) {
	if s.rsi == nil {
		s.rsi = make(map[IndicatorKey]RSIResult)
	}
	s.rsi[key] = r
}

// Len returns the number of stored records across all kinds.
func (s IndicatorSet) Len() int {
	return len(s.dmi) + len(s.bollinger) + len(s.rsi)
}

// Keys returns all stored keys sorted by their string form.
func (s IndicatorSet) Keys() []IndicatorKey {
	keys := make([]IndicatorKey, 0, s.Len())
	for k := range s.dmi {
		keys = append(keys, k)
	}
	for k := range s.bollinger {
		keys = append(keys, k)
	}
	for k := range s.rsi {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
	return keys
}

// Clone returns a deep copy so that a hydrated bar never aliases another
// bar's maps.
func (s IndicatorSet) Clone() IndicatorSet {
	var out IndicatorSet
	for k, v := range s.dmi {
		out.SetDMI(k, v)
	}
	for k, v := range s.bollinger {
		out.SetBollinger(k, v)
	}
	for k, v := range s.rsi {
		out.SetRSI(k, v)
	}
	return out
}

// MarshalJSON encodes the set as an object keyed by indicator id.
func (s IndicatorSet) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, s.Len())
	for k, v := range s.dmi {
		out[k.String()] = v
	}
	for k, v := range s.bollinger {
		out[k.String()] = v
	}
	for k, v := range s.rsi {
		out[k.String()] = v
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes an object keyed by indicator id.
func (s *IndicatorSet) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s = IndicatorSet{}
	for id, msg := range raw {
		key, err := ParseIndicatorKey(id)
		if err != nil {
			return err
		}
		switch key.Kind {
		case IndicatorDMI:
			var r DMIResult
			if err := json.Unmarshal(msg, &r); err != nil {
				return fmt.Errorf("decoding %s: %w", id, err)
			}
			s.SetDMI(key, r)
		case IndicatorBollinger:
			var r BollingerResult
			if err := json.Unmarshal(msg, &r); err != nil {
				return fmt.Errorf("decoding %s: %w", id, err)
			}
			s.SetBollinger(key, r)
		case IndicatorRSI:
			var r RSIResult
			if err := json.Unmarshal(msg, &r); err != nil {
				return fmt.Errorf("decoding %s: %w", id, err)
			}
			s.SetRSI(key, r)
		}
	}
	return nil
}
