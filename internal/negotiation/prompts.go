package negotiation

import (
	"fmt"

	"haggle/internal/catalog"
)

// Classifier labels. The evaluation prompt asks for exactly one of these
// on a single line; anything else is treated as CONTINUE.
const (
	labelAcceptance = "ACCEPTANCE"
	labelRejection  = "REJECTION"
	labelContinue   = "CONTINUE"
)

func buyerProductInfo(p catalog.Product) string {
	return fmt.Sprintf("- %s:\n  Retail Price: %s\n  Features: %s\n", p.Name, p.RetailPrice, p.Features)
}

func sellerProductInfo(p catalog.Product) string {
	return fmt.Sprintf("- %s:\n  Retail Price: %s\n  Wholesale Price: %s\n  Features: %s\n", p.Name, p.RetailPrice, p.WholesalePrice, p.Features)
}

// buyerSystemPrompt builds the buyer persona: minimize price, hard budget
// ceiling, refuse rather than exceed it.
func buyerSystemPrompt(p catalog.Product, budget float64) string {
	return fmt.Sprintf(`You are a professional negotiation assistant tasked with purchasing a product. Your goal is to negotiate the best possible price, completing the transaction as cheaply as you can.

Product Information:
%s
Your Budget:
- You have a maximum budget of $%.2f for this purchase.
- Do not exceed this budget under any circumstances.

Constraints:
- You must not exceed your budget. If an offer is above it, reject the offer and say you cannot afford it.

Goal:
- Negotiate to obtain the product at the lowest possible price.
- Use effective negotiation strategies to achieve the best deal.
- [IMPORTANT] You must not exceed your budget. If you cannot get the price within budget, reject the offer and say you cannot afford it.

Guidelines:
1. Keep your responses natural and conversational.
2. Respond with a single message only.
3. Keep your response concise and to the point.
4. Do not reveal your internal thoughts or strategy.
5. Do not emit placeholder brackets such as [Your Name]; this is a real conversation between a buyer and a seller.
6. Make your response as short as possible without losing important information.

Remember: this is a professional negotiation. Your primary goal is to secure the product at the lowest possible price within your budget.`, buyerProductInfo(p), budget)
}

// sellerSystemPrompt builds the seller persona: maximize price, never sell
// below the wholesale floor.
func sellerSystemPrompt(p catalog.Product) string {
	return fmt.Sprintf(`You are a professional sales assistant tasked with selling a product. Your goal is to negotiate the best possible price, completing the transaction as profitably as you can.

Product Information:
%s
Your Goal:
- Negotiate to sell the product at the highest possible price.
- You must not sell below the Wholesale Price.
- Use effective negotiation strategies to maximize your profit.
- Be professional and cordial throughout the negotiation.

Guidelines:
1. Keep your responses natural and conversational.
2. Respond with a single message only.
3. Keep your response concise and to the point.
4. Do not reveal your internal thoughts or strategy.
5. Do not emit placeholder brackets such as [Your Name]; this is a real conversation between a buyer and a seller.
6. Make your response as short as possible without losing important information.

Remember: this is a professional negotiation. Your primary goal is to secure the highest possible price, but you must not go below the Wholesale Price.`, sellerProductInfo(p))
}

// openingPrompt generates the buyer's first message. The opening must read
// as a casual shopper: it must not reveal the negotiation-assistant role.
func openingPrompt(p catalog.Product, budget float64) string {
	return fmt.Sprintf(`You are a professional negotiation assistant aiming to purchase a product at the best possible price.

Your task is to start the conversation naturally without revealing your role as a negotiation assistant.

Write a short and friendly message to the seller that:
1. Expresses interest in the product and asks about the possibility of negotiating the price.
2. Sounds natural, polite, and engaging.

Avoid over-explaining. Open with a simple greeting and lead smoothly into your interest.

Product: %s
Retail Price: %s
Features: %s
Your maximum budget for this purchase is $%.2f.

Keep the message concise and focused on opening the negotiation.`, p.Name, p.RetailPrice, p.Features, budget)
}

// extractionPrompt asks the summary model for the product's own price in a
// seller message, excluding add-ons. The reply contract is a bare currency
// value or the literal None; parseQuotedPrice is the safety net either way.
func extractionPrompt(sellerMessage string) string {
	return fmt.Sprintf(`Extract the price offered by the seller in the following message.
Return only the numerical price (with currency symbol) if there is a clear price offer.
If there is no clear price offer, return 'None'.

IMPORTANT: Only consider the price of the product itself. Ignore any prices for add-ons like insurance, warranty, gifts, or accessories. Only extract the current offer price for the main product.

Here are some examples:

Example 1:
Seller's message: I can offer you this car for $25000, which is a fair price considering its features.
Price: $25000

Example 2:
Seller's message: Thank you for your interest in our product. Let me know if you have any specific questions about its features.
Price: None

Example 3:
Seller's message: I understand your budget constraints, but the best I can do is $22900 and with giving you a $3000 warranty.
Price: $22900

Example 4:
Seller's message: I can sell it to you for $15500. We also offer an extended warranty for $1200 if you're interested.
Price: $15500

Now for the current message, STRICTLY return only the price with the $ symbol and no other text:
Seller's message:
%s
Price:`, sellerMessage)
}

// evaluationPrompt asks the summary model whether the buyer's latest
// response concludes the deal.
func evaluationPrompt(buyerMessage, sellerMessage string) string {
	if sellerMessage == "" {
		sellerMessage = "No response yet"
	}
	return fmt.Sprintf(`You are evaluating if the buyer's latest response indicates agreement to a deal.

Buyer's latest message: %q
Seller's latest message: %q

Determine if the buyer's response indicates:
A. ACCEPTANCE - The buyer has clearly agreed to the deal
B. REJECTION - The buyer has clearly rejected the deal or indicated they cannot proceed
C. CONTINUE - The buyer wants to continue negotiating

Consider the following in your analysis:
- Has the buyer explicitly agreed to purchase at the offered price?
- Has the buyer explicitly rejected the offer or indicated they are walking away?
- Has the buyer indicated they cannot afford the price?
- Is the buyer still asking questions or making counter-offers?

Strictly output a single line containing just one of: ACCEPTANCE, REJECTION, or CONTINUE.`, buyerMessage, sellerMessage)
}
