package freight

// allowedTransitions is the delivery status machine. Delivered, cancelled and
// failed are terminal. Any transition outside this table is rejected with a
// domain error and leaves the delivery unchanged.
var allowedTransitions = map[DeliveryStatus][]DeliveryStatus{
	StatusPending:   {StatusInTransit, StatusCancelled},
	StatusInTransit: {StatusDelayed, StatusDelivered, StatusFailed},
	StatusDelayed:   {StatusDelivered, StatusFailed, StatusCancelled},
	StatusDelivered: {},
	StatusCancelled: {},
	StatusFailed:    {},
}

// ValidStatus reports whether s is a known delivery status.
func ValidStatus(s DeliveryStatus) bool {
	_, ok := allowedTransitions[s]
	return ok
}

// CanTransition reports whether the delivery may move to the target status.
func (d *Delivery) CanTransition(to DeliveryStatus) bool {
	for _, next := range allowedTransitions[d.Status] {
		if next == to {
			return true
		}
	}
	return false
}

// TransitionTo moves the delivery to the target status, enforcing the status
// machine. On rejection the delivery is left untouched.
func (d *Delivery) TransitionTo(to DeliveryStatus) error {
	if !ValidStatus(to) {
		return E(KindValidation, "unknown delivery status %q", to)
	}
	if !d.CanTransition(to) {
		return E(KindDomain, "delivery %s: invalid transition %s -> %s", d.ID, d.Status, to)
	}
	d.Status = to
	return nil
}

// MarkDelayed transitions the delivery to delayed. Valid only from pending or
// in_transit; pending jumps straight to delayed when a delay is detected
// before the carrier reports pickup.
func (d *Delivery) MarkDelayed() error {
	switch d.Status {
	case StatusPending, StatusInTransit:
		d.Status = StatusDelayed
		return nil
	default:
		return E(KindDomain, "delivery %s: cannot mark delayed from %s", d.ID, d.Status)
	}
}
