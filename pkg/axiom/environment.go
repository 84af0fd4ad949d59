// Package axiom holds the small set of types shared across every Shell
// subsystem, kept separate to avoid import cycles between the tenant
// manager, egress pipeline and supervisor.
package axiom

import "fmt"

// Environment is one of the three color-coded deployment slots.
type Environment string

const (
	Green Environment = "GREEN"
	Blue  Environment = "BLUE"
	Red   Environment = "RED"

	// Global is the binding-table fallback environment, not a real slot.
	Global Environment = "GLOBAL"
)

// ParseEnvironment validates and normalizes a slot name.
func ParseEnvironment(s string) (Environment, error) {
	switch Environment(s) {
	case Green, Blue, Red:
		return Environment(s), nil
	default:
		return "", fmt.Errorf("axiom: invalid environment %q", s)
	}
}
