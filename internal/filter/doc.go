// Package filter demultiplexes incoming protocol messages.
//
// A Filter owns one dispatch goroutine, the only reader of its message
// source. Each message is routed to at most one registration, checked in
// this order:
//
//  1. single-answer waiter for the message's correlation id (AwaitByID)
//  2. multi-answer stream for the correlation id (AwaitManyByID)
//  3. single-answer waiter for the message kind (AwaitOneKind)
//  4. service-method messages only: the notification is decoded and
//     broadcast to subscribers of its job name (SubscribeNotification);
//     undecodable or unsubscribed notifications are discarded here
//  5. broadcast subscribers of the message kind (SubscribeKind)
//  6. the unmatched ring buffer (DrainUnmatched)
//
// Step 2 is the only place dispatch can block: a full stream applies
// backpressure to every message behind it. Broadcast receivers that fall
// behind lose their oldest queued messages and are told so on their next
// receive.
//
// When the source ends, or the filter context is cancelled, every live
// registration is closed and Done is closed. Registrations made afterwards
// return endpoints that are already closed.
package filter
