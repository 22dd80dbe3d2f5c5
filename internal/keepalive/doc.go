// Package keepalive owns the local socket a supervised process uses to
// confirm that its supervisor is still alive.
//
// Each Listener is bound to a unique name (a random UUID) that is generated
// when the Listener is created, so the name can be passed to the child on its
// command line before the child is spawned. Once started, the Listener accepts
// connections forever and drops each one immediately: a successful connect is
// the whole signal, no data is exchanged.
//
// On Linux the socket lives in the abstract namespace ("@<name>"), matching
// the LocalServerSocket convention used on Android. Elsewhere it is a socket
// file under os.TempDir().
//
// A bind failure is logged and leaves the Listener dead; it is never fatal to
// the owning supervisor, because the channel is advisory.
//
// Usage:
//
//	ka := keepalive.New()
//	ka.SetLogger(log)
//	ka.Start()
//	args = append(args, "-s", ka.Name())
package keepalive
