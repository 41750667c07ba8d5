//go:build !linux && !windows

package source

const Supported = false

// Defaults returns empty chains; every acquisition reports no data.
func Defaults(_ Options) Chains {
	return Chains{}
}
