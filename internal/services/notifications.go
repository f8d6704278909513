package services

import (
	"fmt"
	"log"

	"github.com/resend/resend-go/v2"
)

// NotificationService sends transactional emails via Resend. Sends happen
// after the engine's transaction commits and are fire-and-forget: a failed
// email is logged, never propagated, so it can never roll back a fund
// movement.
type NotificationService struct {
	Client *resend.Client
	From   string
}

func NewNotificationService(apiKey, fromEmail string) *NotificationService {
	if fromEmail == "" {
		fromEmail = "onboarding@resend.dev"
	}
	return &NotificationService{
		Client: resend.NewClient(apiKey),
		From:   fromEmail,
	}
}

func (n *NotificationService) send(to, subject, html string) {
	if to == "" {
		return
	}
	params := &resend.SendEmailRequest{
		From:    n.From,
		To:      []string{to},
		Subject: subject,
		Html:    html,
	}
	if _, err := n.Client.Emails.Send(params); err != nil {
		log.Printf("notification email to %s failed: %v", to, err)
	}
}

// OrderDelivered notifies the seller that escrow was released.
func (n *NotificationService) OrderDelivered(to string, orderID uint, amount int64) {
	go n.send(to,
		fmt.Sprintf("Order #%d delivered - funds released", orderID),
		fmt.Sprintf("<p>Order #%d has been delivered. ₦%.2f has been credited to your available balance.</p>", orderID, float64(amount)/100))
}

// OrderRefunded notifies the buyer that a cancellation refund was issued.
func (n *NotificationService) OrderRefunded(to string, orderID uint, amount int64) {
	go n.send(to,
		fmt.Sprintf("Order #%d cancelled - refund issued", orderID),
		fmt.Sprintf("<p>Order #%d was cancelled. A refund of ₦%.2f is on its way back to your payment method.</p>", orderID, float64(amount)/100))
}

// DisputeResolved notifies a party about the outcome of a dispute.
func (n *NotificationService) DisputeResolved(to string, orderID uint, resolution string) {
	go n.send(to,
		fmt.Sprintf("Dispute on order #%d resolved", orderID),
		fmt.Sprintf("<p>The dispute on order #%d has been resolved: %s.</p>", orderID, resolution))
}

// WithdrawalProcessed notifies a user about a withdrawal decision.
func (n *NotificationService) WithdrawalProcessed(to string, amount int64, approved bool) {
	outcome := "approved and is being transferred to your bank account"
	if !approved {
		outcome = "rejected and the amount has been returned to your available balance"
	}
	go n.send(to,
		"Withdrawal update",
		fmt.Sprintf("<p>Your withdrawal of ₦%.2f was %s.</p>", float64(amount)/100, outcome))
}
