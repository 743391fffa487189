// Package notifier delivers operator notifications.
//
// Send only enqueues. A small worker pool drains the queue, paces calls with a
// token bucket and fans each notification out to every operator chat. Failed
// deliveries are logged and published on the event bus; they are never
// retried, so a slow or broken chat cannot stall the dispatcher.
//
// # Buttons
//
// Notifications about marketplace events carry an inline keyboard chosen by
// kind: chats get an "open" link plus reply and template actions, orders get
// an "open" link plus a refund action, reviews get a reply action. Callback
// data has the form "<kind>:<action>:<entity id>".
package notifier
