// Package extension assembles the messaging extension: a handle registry
// with the ZMQSocket and ZMQMessage types, a transport context, and the
// poller machinery that feeds results back to the host.
//
// The host owns exactly one execution context per goroutine that calls
// Dispatch or Run. Poll never invokes a callback itself; completions wait
// in the queue until the host drains them:
//
//	ext, err := extension.Load(extension.WithLogger(log))
//	if err != nil {
//	    return err
//	}
//	defer ext.Unload(context.Background())
//
//	me := ext.NewContext("main")
//	svc := ext.Messaging()
//	sock, _ := svc.CreateSocket(me, transport.Pull)
//	_ = svc.Bind(me, sock, "inproc://jobs")
//	_ = ext.Poll(me, sock, onMessage, -1)
//	ext.Run(ctx)
//
// Unload tears everything down in order: pollers first, then pending
// completions, handles, and finally the transport context.
package extension
