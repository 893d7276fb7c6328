package indicator

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Kind identifies an indicator in the closed registry.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindSMA
	KindEMA
	KindSMMA
	KindBB
	KindStoch
	KindMACD
	KindVolume
	KindRSI
)

var kindNames = [...]string{
	KindUnknown: "UNKNOWN",
	KindSMA:     "SMA",
	KindEMA:     "EMA",
	KindSMMA:    "SMMA",
	KindBB:      "BB",
	KindStoch:   "STOCH",
	KindMACD:    "MACD",
	KindVolume:  "VOL",
	KindRSI:     "RSI",
}

// Kinds lists every registered kind.
func Kinds() []Kind {
	return []Kind{KindSMA, KindEMA, KindSMMA, KindBB, KindStoch, KindMACD, KindVolume, KindRSI}
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return kindNames[KindUnknown]
}

// ParseKind resolves a kind name, case-insensitively.
func ParseKind(s string) (Kind, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	for _, k := range Kinds() {
		if kindNames[k] == name {
			return k, nil
		}
	}
	return KindUnknown, &InvalidParameterError{Kind: name, Param: "kind", Value: s, Reason: "unknown indicator kind"}
}

func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *Kind) UnmarshalText(b []byte) error {
	parsed, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Outputs returns the dataset series keys the kind produces.
func (k Kind) Outputs() []string {
	switch k {
	case KindBB:
		return []string{"upper", "middle", "lower"}
	case KindStoch:
		return []string{"k", "d"}
	case KindMACD:
		return []string{"macd", "signal", "histogram"}
	case KindVolume:
		return []string{"volume", "ma"}
	case KindUnknown:
		return nil
	default:
		return []string{"value"}
	}
}

// Spec is a parsed, validated indicator configuration.
type Spec struct {
	Kind   Kind `json:"kind"`
	Period int  `json:"period,omitempty"`

	// EMA smoothing factor; zero means 2/(Period+1).
	Smoothing float64 `json:"smoothing,omitempty"`

	// Bollinger band width in standard deviations.
	StdDevs float64 `json:"std_devs,omitempty"`

	// Stochastic %K smoothing and %D period.
	KSmoothing int `json:"k_smoothing,omitempty"`
	DPeriod    int `json:"d_period,omitempty"`

	// MACD periods.
	Fast   int `json:"fast,omitempty"`
	Slow   int `json:"slow,omitempty"`
	Signal int `json:"signal,omitempty"`
}

// Defaults.
const (
	DefaultBBStdDevs  = 2.0
	DefaultKSmoothing = 1
	DefaultDPeriod    = 3
	DefaultMACDFast   = 12
	DefaultMACDSlow   = 26
	DefaultMACDSignal = 9
	DefaultVolumeMA   = 20
)

// ParseSpec parses "KIND:p1:p2..." into a validated Spec.
//
//	SMA:20  EMA:9  EMA:9:0.2  SMMA:14  RSI:14  VOL:20
//	BB:20:2  STOCH:14:3:3  MACD:12:26:9
//
// Trailing parameters may be omitted and take their defaults.
func ParseSpec(s string) (Spec, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	kind, err := ParseKind(parts[0])
	if err != nil {
		return Spec{}, err
	}
	params := parts[1:]
	for i := range params {
		params[i] = strings.TrimSpace(params[i])
	}

	spec := Spec{Kind: kind}
	p := paramReader{kind: kind, params: params}

	switch kind {
	case KindSMA, KindSMMA, KindRSI:
		spec.Period = p.intParam("period", 0, true)
	case KindEMA:
		spec.Period = p.intParam("period", 0, true)
		if p.has(1) {
			spec.Smoothing = p.floatParam("smoothing", 0)
			if p.err == nil && !(spec.Smoothing > 0 && spec.Smoothing <= 1) {
				p.err = invalid(kind, "smoothing", spec.Smoothing, "must be in (0,1]")
			}
		}
	case KindBB:
		spec.Period = p.intParam("period", 0, true)
		spec.StdDevs = p.floatParam("std_devs", DefaultBBStdDevs)
	case KindStoch:
		spec.Period = p.intParam("period", 0, true)
		spec.KSmoothing = p.intParam("k_smoothing", DefaultKSmoothing, false)
		spec.DPeriod = p.intParam("d_period", DefaultDPeriod, false)
	case KindMACD:
		spec.Fast = p.intParam("fast", DefaultMACDFast, false)
		spec.Slow = p.intParam("slow", DefaultMACDSlow, false)
		spec.Signal = p.intParam("signal", DefaultMACDSignal, false)
	case KindVolume:
		spec.Period = p.intParam("period", DefaultVolumeMA, false)
	}
	if p.err != nil {
		return Spec{}, p.err
	}
	if p.next < len(params) {
		return Spec{}, invalid(kind, "params", s, "too many parameters")
	}
	if err := spec.Validate(); err != nil {
		return Spec{}, err
	}
	return spec, nil
}

// ParseSpecs parses a list of spec strings, rejecting duplicates.
func ParseSpecs(list []string) ([]Spec, error) {
	specs := make([]Spec, 0, len(list))
	seen := make(map[string]bool, len(list))
	for _, raw := range list {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		spec, err := ParseSpec(raw)
		if err != nil {
			return nil, err
		}
		if seen[spec.Name()] {
			return nil, invalid(spec.Kind, "spec", raw, "duplicate indicator")
		}
		seen[spec.Name()] = true
		specs = append(specs, spec)
	}
	return specs, nil
}

// Validate checks every parameter of the spec.
func (s Spec) Validate() error {
	switch s.Kind {
	case KindSMA, KindSMMA, KindRSI, KindVolume:
		return positive(s.Kind, "period", s.Period)
	case KindEMA:
		if err := positive(s.Kind, "period", s.Period); err != nil {
			return err
		}
		if math.IsNaN(s.Smoothing) || s.Smoothing < 0 || s.Smoothing > 1 {
			return invalid(s.Kind, "smoothing", s.Smoothing, "must be in (0,1]")
		}
	case KindBB:
		if err := positive(s.Kind, "period", s.Period); err != nil {
			return err
		}
		if math.IsNaN(s.StdDevs) || math.IsInf(s.StdDevs, 0) || s.StdDevs <= 0 {
			return invalid(s.Kind, "std_devs", s.StdDevs, "must be positive")
		}
	case KindStoch:
		if err := positive(s.Kind, "period", s.Period); err != nil {
			return err
		}
		if err := positive(s.Kind, "k_smoothing", s.KSmoothing); err != nil {
			return err
		}
		return positive(s.Kind, "d_period", s.DPeriod)
	case KindMACD:
		for _, p := range []struct {
			name string
			v    int
		}{{"fast", s.Fast}, {"slow", s.Slow}, {"signal", s.Signal}} {
			if err := positive(s.Kind, p.name, p.v); err != nil {
				return err
			}
		}
		if s.Fast >= s.Slow {
			return invalid(s.Kind, "fast", s.Fast, fmt.Sprintf("must be less than slow (%d)", s.Slow))
		}
	default:
		return invalid(s.Kind, "kind", s.Kind, "unknown indicator kind")
	}
	return nil
}

// Alpha returns the EMA smoothing factor.
func (s Spec) Alpha() float64 {
	if s.Smoothing > 0 {
		return s.Smoothing
	}
	return 2.0 / float64(s.Period+1)
}

// Lookback returns how many bars precede the first available value.
func (s Spec) Lookback() int {
	switch s.Kind {
	case KindRSI:
		return s.Period
	case KindStoch:
		return s.Period + s.KSmoothing + s.DPeriod - 3
	case KindMACD:
		return s.Slow + s.Signal - 2
	case KindVolume:
		return 0
	default:
		return s.Period - 1
	}
}

// String returns the canonical spec string, accepted by ParseSpec.
func (s Spec) String() string { return s.join(":") }

// Name returns the dataset name, e.g. "SMA_20" or "BB_20_2".
func (s Spec) Name() string { return s.join("_") }

func (s Spec) join(sep string) string {
	parts := []string{s.Kind.String()}
	switch s.Kind {
	case KindEMA:
		parts = append(parts, strconv.Itoa(s.Period))
		if s.Smoothing > 0 {
			parts = append(parts, ftoa(s.Smoothing))
		}
	case KindBB:
		parts = append(parts, strconv.Itoa(s.Period), ftoa(s.StdDevs))
	case KindStoch:
		parts = append(parts, strconv.Itoa(s.Period), strconv.Itoa(s.KSmoothing), strconv.Itoa(s.DPeriod))
	case KindMACD:
		parts = append(parts, strconv.Itoa(s.Fast), strconv.Itoa(s.Slow), strconv.Itoa(s.Signal))
	default:
		parts = append(parts, strconv.Itoa(s.Period))
	}
	return strings.Join(parts, sep)
}

func ftoa(f float64) string { return strconv.FormatFloat(f, 'g', -1, 64) }

func positive(kind Kind, name string, v int) error {
	if v <= 0 {
		return invalid(kind, name, v, "must be positive")
	}
	return nil
}

// paramReader consumes positional spec parameters, keeping the first error.
type paramReader struct {
	kind   Kind
	params []string
	next   int
	err    error
}

func (p *paramReader) has(i int) bool { return i < len(p.params) && p.params[i] != "" }

func (p *paramReader) intParam(name string, def int, required bool) int {
	i := p.next
	p.next++
	if p.err != nil {
		return def
	}
	if !p.has(i) {
		if required {
			p.err = invalid(p.kind, name, "", "required")
		}
		return def
	}
	n, err := strconv.Atoi(p.params[i])
	if err != nil {
		p.err = invalid(p.kind, name, p.params[i], "not an integer")
		return def
	}
	return n
}

func (p *paramReader) floatParam(name string, def float64) float64 {
	i := p.next
	p.next++
	if p.err != nil || !p.has(i) {
		return def
	}
	f, err := strconv.ParseFloat(p.params[i], 64)
	if err != nil {
		p.err = invalid(p.kind, name, p.params[i], "not a number")
		return def
	}
	return f
}
