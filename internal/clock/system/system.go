// Package system provides the wall clock used outside of tests.
package system

import "time"

// Clock reads the system time. All timestamps in the service are UTC so
// cache expiry and document generation times compare cleanly across hosts.
type Clock struct{}

// New returns a system Clock.
func New() Clock {
	return Clock{}
}

// Now returns the current UTC time.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}
