package orchestrator

import (
	"context"
	"slices"
)

// OrderID is the confirmation number the scripted flow hands out.
const OrderID = "ORD-7782"

// TrackingURL is the shipment link attached to the final confirmation.
const TrackingURL = "https://nexus-retail-demo.ai/track/" + OrderID

type scriptKey struct {
	step   Step
	hasLog bool
}

var (
	requestedFirstPass = Response{
		Narration: "Intent detected: 'Purchase Red Shirt'.\nStrategy: Check Inventory for target. Check Recommendations for backups. Check Loyalty for potential appeasement offers.",
		Plan:      []AgentID{AgentInventory, AgentRecommendation, AgentLoyalty},
		UserText:  "One moment, let me check the stock and your member offers...",
		Render:    RenderText,
	}
	requestedWithLog = Response{
		Narration: "CRITICAL: Red Shirt is OUT_OF_STOCK.\nPositive: Yellow Shirt found.\nPositive: User is VIP (Discount Active).\nAction: Propose Yellow Shirt + Discount.",
		UserText: "I have some bad news and some good news.\n\n" +
			"The **Red Shirt** is currently sold out.\n\n" +
			"However! I found the **Yellow Shirt** in your size. Since you are a VIP Gold member, " +
			"I can apply a **15% discount** right now if you switch to Yellow.\n\n" +
			"Would you like to proceed with the Yellow one?",
		Render: RenderText,
	}
	offerAccepted = Response{
		Narration: "User accepted substitute.\nAction: Secure Payment Method.\nOptions: Credit Card (Stored), UPI, Apple Pay.",
		UserText: "Excellent choice. The total comes to **$45.00** after your discount.\n\n" +
			"How would you like to pay?\n\n" +
			"1. Credit Card (Ending in 4242)\n2. UPI\n3. Apple Pay",
		Render: RenderText,
	}
	paymentMethodChosen = Response{
		Narration: "Payment Method: UPI selected.\nAction: Generate QR Code.\nAction: Start Payment Listener.",
		UserText:  "Please scan the QR code below to complete the payment of $45.00.",
		Render:    RenderQRCode,
	}
	completedFirstPass = Response{
		Narration: "SYSTEM_SIGNAL: Payment Received via UPI.\nAction: Verify Transaction (Payment Agent).\nAction: Dispatch Order (Fulfillment Agent).",
		Plan:      []AgentID{AgentPayment, AgentFulfillment},
		UserText:  "Payment received! Verifying transaction details...",
		Render:    RenderText,
	}
	completedWithLog = Response{
		Narration: "Payment: VERIFIED.\nLogistics: DISPATCHED.\nState: Order Closed.",
		UserText: "Success!\n\nYour order for the **Yellow Shirt** has been confirmed.\n\n" +
			"• Order ID: #" + OrderID + "\n" +
			"• Delivery: Tomorrow via Express.\n\n" +
			"Thank you for shopping with Nexus!\n\n" +
			"[Track your shipment live here](" + TrackingURL + ")",
		Render: RenderText,
	}
	// Idle is returned for every key outside the table, including step 0.
	Idle = Response{
		Narration: "Waiting for user input...",
		UserText:  "I'm ready for your next request.",
		Render:    RenderText,
	}
)

var scriptTable = map[scriptKey]Response{
	{StepRequested, false}:           requestedFirstPass,
	{StepRequested, true}:            requestedWithLog,
	{StepOfferAccepted, false}:       offerAccepted,
	{StepOfferAccepted, true}:        offerAccepted,
	{StepPaymentMethodChosen, false}: paymentMethodChosen,
	{StepPaymentMethodChosen, true}:  paymentMethodChosen,
	{StepCompleted, false}:           completedFirstPass,
	{StepCompleted, true}:            completedWithLog,
}

// Script is the fixed demo resolver. It is pure and total.
type Script struct{}

// Resolve looks up (step, log != "") in the script table.
func (Script) Resolve(_ context.Context, req Request) Response {
	return Lookup(req.Step, req.Log)
}

// Lookup is the table lookup behind Script, exposed for callers without a
// context.
func Lookup(step Step, log string) Response {
	resp, ok := scriptTable[scriptKey{step: step, hasLog: log != ""}]
	if !ok {
		resp = Idle
	}
	resp.Plan = slices.Clone(resp.Plan)
	return resp
}
