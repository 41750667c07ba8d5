package normalize

import "fmt"

const (
	// MinDesignCapacity is the plausibility floor for design capacity, in
	// mWh. Anything at or below it is a firmware placeholder.
	MinDesignCapacity = 1000
	// MaxFullChargeRatio bounds full-charge capacity relative to design.
	MaxFullChargeRatio = 1.5
)

// Capacities drops implausible capacity readings. Values are never clamped:
// an out-of-range value is returned as nil together with the reason, so that
// no health number is ever computed from it.
func Capacities(design, full *int) (d, f *int, reasons []string) {
	if design != nil {
		if *design <= MinDesignCapacity {
			reasons = append(reasons, fmt.Sprintf("design capacity %d mWh is below the plausibility floor %d mWh", *design, MinDesignCapacity))
		} else {
			v := *design
			d = &v
		}
	}

	if full != nil {
		switch {
		case *full <= 0:
			reasons = append(reasons, fmt.Sprintf("full-charge capacity %d mWh is not positive", *full))
		case d != nil && float64(*full) > MaxFullChargeRatio*float64(*d):
			reasons = append(reasons, fmt.Sprintf("full-charge capacity %d mWh exceeds %.1fx design capacity %d mWh", *full, MaxFullChargeRatio, *d))
		default:
			v := *full
			f = &v
		}
	}

	return d, f, reasons
}

// ValidCapacity reports whether the pair can be used for a health computation.
func ValidCapacity(design, full *int) bool {
	if design == nil || full == nil {
		return false
	}
	d, f, reasons := Capacities(design, full)
	return d != nil && f != nil && len(reasons) == 0
}
