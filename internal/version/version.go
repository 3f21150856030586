// Package version carries the build and protocol identity reported on
// the wire.
package version

const (
	// ServiceName identifies this service in /connect responses and logs.
	ServiceName = "stemsplit"

	// Version is the service release version.
	Version = "0.2.0"

	// Protocol is the split protocol version. Clients and servers with
	// the same major version are wire compatible.
	Protocol = "1.0.0"
)
