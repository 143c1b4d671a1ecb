package domain

// Flow selects how a checkout is funded and what it pays for.
type Flow string

const (
	FlowDepositWallet   Flow = "deposit_wallet"    // gateway-funded wallet top-up
	FlowBooking         Flow = "booking"           // gateway-funded booking payment
	FlowBookingByWallet Flow = "booking_by_wallet" // wallet-funded booking payment
	FlowPayoutWallet    Flow = "payout_wallet"     // reserved; no journal type maps to it
)

// IsGatewayFunded reports whether the flow requires an external gateway
// round trip.
func (f Flow) IsGatewayFunded() bool {
	return f == FlowDepositWallet || f == FlowBooking
}

// JournalTypeForFlow derives the journal type a flow opens. The boolean is
// false when no journal type maps to the flow.
func JournalTypeForFlow(f Flow) (JournalType, bool) {
	switch f {
	case FlowDepositWallet:
		return JournalDeposit, true
	case FlowBooking, FlowBookingByWallet:
		return JournalHold, true
	default:
		return "", false
	}
}
