// Package notifications pushes appliance events to an ntfy topic. With no
// topic configured the service degrades to a noop, so callers never branch
// on whether notifications are enabled.
package notifications
