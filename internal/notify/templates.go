package notify

import (
	"bytes"
	"fmt"
	"html/template"
)

const (
	KindTicketReply         = "ticket_reply"
	KindPaymentConfirmation = "payment_confirmation"
)

var ticketReplyTmpl = template.Must(template.New("ticket_reply").Parse(`<h2>Support ticket update</h2>
<p>Our support team has replied to your ticket <strong>{{.Subject}}</strong>:</p>
<blockquote style="border-left:3px solid #ccc;padding-left:12px">{{.Message}}</blockquote>
<p>Ticket reference: {{.TicketID}}</p>
<p>{{.Signature}}</p>`))

var paymentConfirmationTmpl = template.Must(template.New("payment_confirmation").Parse(`<h2>Payment received</h2>
<p>We have received your payment of <strong>{{.Amount}} {{.Currency}}</strong> for order {{.OrderID}}.</p>
{{if .Receipt}}<p>Receipt number: {{.Receipt}}</p>{{end}}
<p>{{.Signature}}</p>`))

type TicketReply struct {
	TicketID  string
	Email     string
	Subject   string
	Message   string
	Signature string
}

// TicketReplyEmail renders the "Re: <subject>" email sent when an admin answers a ticket.
func TicketReplyEmail(data TicketReply) (Email, error) {
	var buf bytes.Buffer
	if err := ticketReplyTmpl.Execute(&buf, data); err != nil {
		return Email{}, fmt.Errorf("notify: render ticket reply: %w", err)
	}

	return Email{
		Kind:    KindTicketReply,
		To:      []string{data.Email},
		Subject: "Re: " + data.Subject,
		HTML:    buf.String(),
	}, nil
}

type PaymentConfirmation struct {
	OrderID   string
	Email     string
	Amount    string
	Currency  string
	Receipt   string
	Signature string
}

func PaymentConfirmationEmail(data PaymentConfirmation) (Email, error) {
	var buf bytes.Buffer
	if err := paymentConfirmationTmpl.Execute(&buf, data); err != nil {
		return Email{}, fmt.Errorf("notify: render payment confirmation: %w", err)
	}

	return Email{
		Kind:    KindPaymentConfirmation,
		To:      []string{data.Email},
		Subject: "Payment received for order " + data.OrderID,
		HTML:    buf.String(),
	}, nil
}
