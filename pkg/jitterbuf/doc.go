// Package jitterbuf implements a bounded ring-buffer jitter buffer for
// real-time media or event streams. A high/low water-mark state machine
// smooths producer jitter and a dedicated consumer goroutine emits frames
// to a caller-supplied output sink on a fixed cadence.
//
// The buffer trades a small, bounded amount of latency (the pre-roll set
// by the high water mark) for tolerance of burstiness, stalls, and late
// arrivals. It does not reorder packets, conceal loss beyond optional
// silence fill, or convert sample rates.
package jitterbuf
