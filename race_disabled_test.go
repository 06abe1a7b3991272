//go:build !race

package hazard_test

const raceEnabled = false
