// Package messaging exposes message-queue sockets and messages to host
// contexts as registry handles.
//
// New registers two resource types on a registry: ZMQSocket, whose
// destructor closes the transport endpoint, and ZMQMessage, whose values
// release their buffer when dropped. Every operation takes the identity of
// the calling context and fails with an InvalidHandle error when a handle is
// unknown, stale, of the wrong type, or belongs to another context.
// Transport failures are returned as Transport errors wrapping a
// *transport.Error with the backend's diagnostic text.
//
//	svc, _ := messaging.New(reg, zeromq.New(), extensionID)
//	sock, _ := svc.CreateSocket(ctxID, transport.Push)
//	_ = svc.Connect(ctxID, sock, "tcp://127.0.0.1:5555")
//	msg, _ := svc.CreateMessage(ctxID, payload, len(payload))
//	_ = svc.Send(ctxID, sock, msg, 0)
//
// Sending never consumes the message handle; the caller destroys it.
package messaging
