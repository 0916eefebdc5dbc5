// Package proctor runs a locked-down interview session: device gating,
// media and fullscreen readiness, violation scoring with a two-strike budget,
// chunked recording, submission and crash recovery.
//
// The client runtime (camera, display, media recorder, page navigation) is
// reached through the MediaDevices, Display, RecorderFactory and Host
// interfaces. A Session serializes every state change behind one mutex and
// never holds it across client or network I/O.
package proctor
