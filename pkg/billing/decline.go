package billing

// declineMessages maps a chaos-sampled decline code to the fixed,
// human-readable message a real processor would attach to the failed
// PaymentIntent. Unknown codes fall back to genericDeclineMessage.
var declineMessages = map[string]string{
	"card_declined":      "Your card was declined.",
	"insufficient_funds": "Your card has insufficient funds.",
	"expired_card":       "Your card has expired.",
	"incorrect_cvc":      "Your card's security code is incorrect.",
	"processing_error":   "An error occurred while processing your card. Try again in a little bit.",
}

const genericDeclineMessage = "Your card was declined."

func declineMessage(code string) string {
	if msg, ok := declineMessages[code]; ok {
		return msg
	}
	return genericDeclineMessage
}
