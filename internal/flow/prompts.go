package flow

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Fixed replies of the lucky draw flow.
const (
	WelcomeMessage = "🎉 **Welcome to the Lucky Draw!**\n\n" +
		"To enter, please submit your receipt by typing **image**."

	ConfirmExitMessage = "It looks like your message isn't related to the lucky draw.\n" +
		"Would you like to exit the lucky draw entry? (yes/no)"

	ExitConfirmedMessage = "No problem! You've exited the lucky draw entry.\n\n" +
		"I'm a document assistant, feel free to ask me anything about the available documents!"

	MaxRetriesExceededMessage = "❌ Too many invalid attempts. The lucky draw entry has been cancelled.\n" +
		"You can start again anytime by mentioning the lucky draw!"

	AwaitingReceiptReminder = "Please submit your receipt by typing **image** to continue with the lucky draw entry."

	AwaitingDetailsReminder = "Please provide your details in the following format to continue:\n\n" + detailsFormat

	FlowFailedMessage = "❌ Sorry, we couldn't record your lucky draw entry right now. " +
		"Please start again by mentioning the lucky draw."
)

const detailsFormat = "```\n" +
	"Name: [your full name]\n" +
	"Number: [your phone number]\n" +
	"Email: [your email address]\n" +
	"```"

// Status labels shown to the user in the success message.
const (
	StatusLabelApproved = "Approved"
	StatusLabelPending  = "Pending Review"
)

func formatAmount(amount decimal.Decimal) string {
	return "$" + amount.StringFixed(2)
}

func receiptProcessedMessage(receiptNo int64, amount decimal.Decimal, confidence float64) string {
	return fmt.Sprintf("✅ **Receipt Processed!**\n\n"+
		"- **Receipt No:** %d\n"+
		"- **Amount:** %s\n"+
		"- **Confidence Level:** %.0f%%\n\n"+
		"Please provide your details in the following format:\n\n%s",
		receiptNo, formatAmount(amount), confidence, detailsFormat)
}

func successMessage(receiptNo int64, statusLabel string) string {
	return fmt.Sprintf("🎉 **Your lucky draw entry has been submitted successfully!**\n\n"+
		"- **Receipt No:** %d\n"+
		"- **Status:** %s\n\n"+
		"Good luck! We will contact you via your phone number or email if you've won!",
		receiptNo, statusLabel)
}

func duplicateMessage(existingReceiptNo int64) string {
	return fmt.Sprintf("⚠️ We found an existing approved entry under your phone number "+
		"(Receipt No: %d). Each person can only enter the lucky draw once.", existingReceiptNo)
}

func rejectedLowAmountMessage(amount decimal.Decimal) string {
	return fmt.Sprintf("❌ Unfortunately, your receipt amount (%s) does not meet the minimum "+
		"requirement of %s for the lucky draw. You are welcome to try again with a qualifying receipt!",
		formatAmount(amount), formatAmount(MinimumAmount))
}

func retryDetailsMessage(missing []string, remaining int) string {
	return fmt.Sprintf("⚠️ Some details are missing or invalid (missing: %s). "+
		"Please provide all three fields in the following format:\n\n%s\n\n(%d attempt(s) remaining)",
		strings.Join(missing, ", "), detailsFormat, remaining)
}
