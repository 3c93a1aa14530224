package adc

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/interp"
)

// InterpMethod selects the monotone interpolation method used to fit
// fn_za_adc (spec §4.4.1).
type InterpMethod string

const (
	MethodPCHIP InterpMethod = "pchip"
	MethodCubic InterpMethod = "cubic"
	MethodAkima InterpMethod = "akima"
)

// fittablePredictor is the subset of gonum's interp.FittablePredictor
// this package needs once fitMethod has fitted the curve: evaluate it.
type fittablePredictor interface {
	Predict(x float64) float64
}

// Lookup holds an ordered (za_deg, adc_deg) table and the fitted
// interpolant derived from it.
type Lookup struct {
	zaDeg  []float64
	adcDeg []float64
	method InterpMethod
	fit    fittablePredictor
}

// MinLookupRows is the minimum number of rows the table file must
// contain (spec §7).
const MinLookupRows = 4

// NewLookup fits an interpolant over the given table, sorted ascending
// by za_deg, using method (default MethodPCHIP if empty).
func NewLookup(zaDeg, adcDeg []float64, method InterpMethod) (*Lookup, error) {
	if len(zaDeg) != len(adcDeg) {
		return nil, fmt.Errorf("adc: lookup: za_deg and adc_deg length mismatch (%d vs %d)", len(zaDeg), len(adcDeg))
	}
	if len(zaDeg) < MinLookupRows {
		return nil, fmt.Errorf("adc: lookup: table has %d rows, need at least %d", len(zaDeg), MinLookupRows)
	}
	for i := 1; i < len(zaDeg); i++ {
		if zaDeg[i] < zaDeg[i-1] {
			return nil, fmt.Errorf("adc: lookup: za_deg not monotonically non-decreasing at row %d (%.4f < %.4f)", i, zaDeg[i], zaDeg[i-1])
		}
	}

	if method == "" {
		method = MethodPCHIP
	}

	fit, err := fitMethod(zaDeg, adcDeg, method)
	if err != nil {
		return nil, err
	}

	return &Lookup{zaDeg: zaDeg, adcDeg: adcDeg, method: method, fit: fit}, nil
}

func fitMethod(xs, ys []float64, method InterpMethod) (fittablePredictor, error) {
	switch method {
	case MethodPCHIP:
		var fb interp.FritschButland
		if err := fb.Fit(xs, ys); err != nil {
			return nil, fmt.Errorf("adc: lookup: pchip fit: %w", err)
		}
		return &fb, nil
	case MethodCubic:
		var nk interp.NotAKnotCubic
		if err := nk.Fit(xs, ys); err != nil {
			return nil, fmt.Errorf("adc: lookup: cubic fit: %w", err)
		}
		return &nk, nil
	case MethodAkima:
		var ak interp.AkimaSpline
		if err := ak.Fit(xs, ys); err != nil {
			return nil, fmt.Errorf("adc: lookup: akima fit: %w", err)
		}
		return &ak, nil
	default:
		return nil, fmt.Errorf("adc: lookup: unknown interpolation method %q", method)
	}
}

// Domain returns [za_min, za_max] for this table.
func (l *Lookup) Domain() (min, max float64) {
	return l.zaDeg[0], l.zaDeg[len(l.zaDeg)-1]
}

// FnZAADC evaluates fn_za_adc(za), failing closed with OutOfBoundsError
// when za falls outside the table's domain (spec §4.4.1: this check MUST
// happen before any motor motion is considered).
func (l *Lookup) FnZAADC(za float64) (float64, error) {
	min, max := l.Domain()
	if za < min || za > max {
		return 0, &OutOfBoundsError{ZenithAngle: za}
	}
	return l.fit.Predict(za), nil
}

// DegreeToCount converts an ADC prism angle in degrees to a signed
// encoder count: round(deg * COUNTS_PER_DEG) (spec §4.4.1).
func DegreeToCount(deg float64) int64 {
	return int64(math.Round(deg * CountsPerDeg))
}

// LoadLookupTable parses a two-column za_deg,adc_deg CSV-like file with
// '#'-prefixed comments permitted (spec §7), returning the parsed columns
// in file order; rows are not sorted here, and NewLookup rejects a table
// whose za_deg column decreases.
func LoadLookupTable(path string) (zaDeg, adcDeg []float64, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("adc: lookup: open %s: %w", path, err)
	}
	defer f.Close()
	return parseLookupTable(f)
}

func parseLookupTable(r io.Reader) (zaDeg, adcDeg []float64, err error) {
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Split(line, ",")
		if len(fields) != 2 {
			return nil, nil, fmt.Errorf("adc: lookup: line %d: expected 2 columns, got %d", lineNo, len(fields))
		}

		za, err := strconv.ParseFloat(strings.TrimSpace(fields[0]), 64)
		if err != nil {
			return nil, nil, fmt.Errorf("adc: lookup: line %d: invalid za_deg: %w", lineNo, err)
		}
		adc, err := strconv.ParseFloat(strings.TrimSpace(fields[1]), 64)
		if err != nil {
			return nil, nil, fmt.Errorf("adc: lookup: line %d: invalid adc_deg: %w", lineNo, err)
		}

		zaDeg = append(zaDeg, za)
		adcDeg = append(adcDeg, adc)
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, fmt.Errorf("adc: lookup: scan: %w", err)
	}

	if len(zaDeg) < MinLookupRows {
		return nil, nil, fmt.Errorf("adc: lookup: table has %d data rows, need at least %d", len(zaDeg), MinLookupRows)
	}

	return zaDeg, adcDeg, nil
}
