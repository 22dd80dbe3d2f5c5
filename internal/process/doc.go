// Package process supervises a single long-running child process that speaks
// a line-based command protocol on its stdin.
//
// A Supervisor drives one child through a fixed lifecycle:
//
//	idle -> starting -> running -> stopping -> terminated
//
// On start it makes sure the keepalive socket is listening, spawns the child
// (optionally through a privilege-elevation helper), and performs a one-shot
// credential handshake by writing "pass <secret>" to the child's stdin. It then
// blocks until the child exits. StopProcess, called from any goroutine, asks
// the child to leave by writing "quit" and closing stdin, and arms a
// force-kill timer in case it does not.
//
// Lifecycle events (starting, started, then exactly one of stopped or error)
// are delivered to an EventSink in order, on a dedicated goroutine, so a slow
// sink never stalls process handling.
//
// A Supervisor is single-use: once terminated it cannot be restarted.
//
// Example usage:
//
//	sup, err := process.NewSupervisor(process.Config{
//	    Spec: process.Spec{
//	        Dir:    "/data/app",
//	        Exec:   "node",
//	        Script: "app.js",
//	        Args:   []string{"--port", "8080"},
//	    },
//	}, sink)
//	if err != nil {
//	    return err
//	}
//	sup.SetLogger(log)
//
//	if err := sup.Start(ctx); err != nil {
//	    return err
//	}
//	defer sup.Wait()
//	defer sup.StopProcess()
package process
