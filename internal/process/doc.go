// Package process provides subprocess lifecycle management.
//
// It is used to supervise the media player (mpv), which the agent launches
// once at startup and relaunches on demand when a playback command finds
// it has exited.
//
// Features:
//   - Start/stop a subprocess in its own process group
//   - Graceful shutdown: SIGTERM to the group, SIGKILL after a timeout
//   - Line-by-line capture of stdout/stderr at debug level
//   - Exit notification via Done and OnExit
//
// Manager deliberately has no restart policy. The owner decides when a
// dead process is relaunched, so a crash-looping player cannot cause a
// restart storm.
//
// Example usage:
//
//	mgr := process.NewManager(process.Config{
//	    Name:            "mpv",
//	    Binary:          "/usr/bin/mpv",
//	    Args:            []string{"--idle=yes", "--input-ipc-server=/tmp/mpv-socket"},
//	    GracefulTimeout: 3 * time.Second,
//	})
//	if err := mgr.Start(); err != nil {
//	    return err
//	}
//	defer mgr.Stop(context.Background())
package process
