// Package playback decides which asset is on screen.
//
// The Coordinator is a small state machine:
//
//	UNINITIALIZED --Start--> DEFAULT_LOOP
//	any           --Select(looping)--> DEFAULT_LOOP
//	any           --Select(one-shot)--> PLAYING_ONE_SHOT --timer--> DEFAULT_LOOP
//	any           --Stop--> STOPPED
//
// Every transition runs on one goroutine fed by a request queue, so a
// timer-driven reversion can never interleave with a command-driven switch.
// Each armed reversion carries a generation number; a timer that fires after
// it was superseded is discarded.
//
// A switch sends playlist-clear, loadfile (replace) and the loop-file
// property in that order. State and timers change only after all three were
// delivered, so a failed switch leaves the previous selection in place.
package playback
