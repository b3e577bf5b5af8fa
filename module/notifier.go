package module

// Notifier informs worker routines about the arrival of new work
// units. It behaves like a channel in that it can be passed by value
// while still sharing internal state. Notifying an already-notified
// Notifier is a no-op, so pending work is coalesced rather than
// queued.
type Notifier struct {
	notifier chan struct{} // buffered, capacity 1
}

func NewNotifier() Notifier {
	return Notifier{make(chan struct{}, 1)}
}

// Notify marks work as pending. Non-blocking: if a notification is
// already pending, this one folds into it.
func (n Notifier) Notify() {
	select {
	case n.notifier <- struct{}{}:
	default:
	}
}

// Channel returns the channel workers receive notifications on.
func (n Notifier) Channel() <-chan struct{} {
	return n.notifier
}
