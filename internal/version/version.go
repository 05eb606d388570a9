// ABOUTME: Version information for cadence
// ABOUTME: Reported by the CLI, the control status and the MPRIS identity
package version

const (
	// Version is the release version
	Version = "0.1.0"

	// Product is the product name
	Product = "Cadence Player"

	// Manufacturer identifies the project
	Manufacturer = "Resonate"
)

// String returns the product and version for banners
func String() string {
	return Product + " " + Version
}
