//go:build !race

package kernel

// RaceEnabled is false when the race detector is not active.
const RaceEnabled = false
