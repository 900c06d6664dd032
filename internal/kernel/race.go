//go:build race

package kernel

// RaceEnabled is true when the race detector is active. Record and
// counter fields use atomix, whose load and store orderings the detector
// cannot see, so tests that run the core from many goroutines skip.
const RaceEnabled = true
