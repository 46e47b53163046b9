// Package player supervises the mpv media player.
//
// An Engine owns one mpv subprocess (via the process package) and the
// JSON IPC control channel to it (via mpvipc). Start launches mpv idle with
// --input-ipc-server and blocks until the socket accepts connections, or
// fails with ErrEngineUnavailable after the ready timeout. Terminate stops
// the process group and removes the socket.
//
// The Engine has no opinion about which asset plays; that is the playback
// coordinator's job.
package player
