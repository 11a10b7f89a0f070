// Package eventsource is a library for consuming SSE streams over HTTP.
//
// This library provides a client for the Server-Sent Events wire format
// with capabilities the browser EventSource API lacks: arbitrary request
// methods, bodies and headers, header refresh between reconnects, a caller
// controlled retry policy and suspending the connection while the consuming
// environment is hidden.
//
// This library is targeted at long-lived subscriptions that must survive
// flaky networks. Reconnects resend the last seen event ID so servers can
// resync the client after a disconnect.
//
// Typical usage of this package is:
// 	* Call Connect() with the stream URL and an Options value carrying an
//	  OnMessage hook.
//	* Use OnError to inspect failures and adjust the reconnect delay, or to
//	  turn a failure into a fatal stop.
//	* Cancel the supplied context to terminate the subscription, Connect()
//	  returns nil in that case.
//	* If several subscriptions should resume each other attach a shared
//	  LastEventIDStore.
package eventsource
