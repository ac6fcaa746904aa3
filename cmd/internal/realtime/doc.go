// Package realtime fans "cards changed" notifications out to connected
// browsers.
//
// Hub keeps the set of live subscribers, each with a bounded queue. Publish
// never blocks: a subscriber whose queue is full is evicted and its stream
// ends, and the client is expected to reconnect and refetch. Events carry no
// payload beyond a scope hint and are never replayed.
//
// Two transports read from the Hub: StreamHandler (Server-Sent Events) and
// WSGateway (WebSocket, subprotocol todolist.cards.v1).
package realtime
