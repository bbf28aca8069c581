package booking

import "context"

// Event identifies a ticket lifecycle notification.
type Event string

const (
	EventTicketSubmitted Event = "ticket.submitted"
	EventStageApproved   Event = "ticket.stage_approved"
	EventTicketApproved  Event = "ticket.approved"
	EventTicketRejected  Event = "ticket.rejected"
	EventTicketPickedUp  Event = "ticket.picked_up"
	EventTicketReturned  Event = "ticket.returned"
)

// Notifier dispatches fire-and-forget notifications after state transitions.
// Delivery failures are logged by the service and never roll back the
// transition that triggered them.
type Notifier interface {
	Notify(ctx context.Context, userIDs []int64, event Event, payload interface{}) error
}

// NopNotifier discards all notifications.
type NopNotifier struct{}

// Notify implements Notifier.
func (NopNotifier) Notify(ctx context.Context, userIDs []int64, event Event, payload interface{}) error {
	return nil
}
