// Package version contains the distkmer version number
package version

// VERSION is the current distkmer version
const VERSION = "0.1.0"
