// Package factory instantiates pluggable modules, such as metrics sinks,
// from a type name and a map of raw settings:
//
//	sinks:
//	  - type: influx
//	    conf: {url: http://localhost:8086, bucket: ghs}
//
// Factories decode the settings with Decode and return the concrete
// implementation.
package factory
