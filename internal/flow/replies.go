package flow

import (
	"fmt"

	"github.com/alfielabs/alfie-voice/pkg/quotes"
)

// Spoken reply wording. These strings are synthesised verbatim, so they are
// written for the ear, not the screen.
const (
	replySearching = "Sure, let me look for quotes for your car. One moment."

	replyNoQuotes = "Sorry, I couldn't find any quotes just now. Would you like me to try again?"

	replySelectionReprompt = "I didn't catch which insurer you'd like. You can say the name, or just 'the first one'."

	replyCancelled = "No problem, I won't go ahead with that. The quotes are still here if you'd like a different one."

	replyPurchaseFailed = "Sorry, the purchase didn't go through. Nothing has been charged. We can try again, or pick a different quote."

	replyGuidance = "I can help you find car insurance quotes and buy a policy. Just ask me to find quotes for your car."
)

// replyQuotesFound summarises the search outcome: total count plus the top
// result's insurer and price.
func replyQuotesFound(results []quotes.Result) string {
	top := results[0]
	if len(results) == 1 {
		return fmt.Sprintf(
			"I found one quote: %s at £%.2f a year. Would you like to go with it?",
			top.InsurerName, top.AnnualCost,
		)
	}
	return fmt.Sprintf(
		"I found %d quotes. The best one is %s at £%.2f a year. Which would you like?",
		len(results), top.InsurerName, top.AnnualCost,
	)
}

// replyConfirmPrompt asks for explicit confirmation, naming insurer and price.
func replyConfirmPrompt(name string, price float64) string {
	return fmt.Sprintf(
		"Great choice. %s at £%.2f a year. Shall I go ahead and set that up for you?",
		name, price,
	)
}

// replyPurchasing acknowledges the confirmed purchase before the call runs.
func replyPurchasing(name string) string {
	return fmt.Sprintf("Perfect, setting up your %s policy now.", name)
}

// replyPurchaseDone announces the successful purchase.
func replyPurchaseDone(name string) string {
	return fmt.Sprintf(
		"All done! Your %s policy is set up. You'll get the documents by email shortly. Anything else I can help with?",
		name,
	)
}
