package service

import (
	"fmt"
	"html"
	"net/url"
	"strings"

	"github.com/in004/bookscape/internal/datamodels/order"
	"github.com/in004/bookscape/internal/infra/mail"
	"github.com/in004/bookscape/internal/payment/paypal"
)

func frontendLink(frontendURL, path, token string) string {
	return strings.TrimRight(frontendURL, "/") + path + "?token=" + url.QueryEscape(token)
}

func unsubscribeURL(frontendURL, token string) string {
	return frontendLink(frontendURL, "/unsubscribe", token)
}

func unsubscribeFooter(url string) string {
	return fmt.Sprintf(`
<br><br>
<hr style="border: none; border-top: 1px solid #eee; margin: 20px 0;">
<p style="font-size: 0.8em; color: #888;">
  If you no longer wish to receive these emails, you can <a href="%s" style="color: #007bff;">unsubscribe here</a>.
</p>`, html.EscapeString(url))
}

func welcomeMail(email, unsubscribe string) mail.Message {
	body := `<h2>Welcome to Bookscape!</h2>
<p>Thanks for subscribing. You'll be the first to hear about new arrivals, staff picks and sales.</p>` +
		unsubscribeFooter(unsubscribe)
	return mail.Message{
		Kind:    mail.KindWelcome,
		To:      email,
		Subject: "Welcome to Bookscape! Your Reading Adventure Awaits!",
		HTML:    body,
	}
}

func orderConfirmationMail(o *order.Order) mail.Message {
	var rows strings.Builder
	for _, it := range o.Items {
		fmt.Fprintf(&rows, "<tr><td>%s</td><td>%d</td><td>%s</td></tr>",
			html.EscapeString(it.Title), it.Quantity, paypal.FormatCents(it.UnitPrice*it.Quantity))
	}
	body := fmt.Sprintf(`<h2>Thank you for your order!</h2>
<p>Order #%d has been paid and is being prepared.</p>
<table><tr><th>Title</th><th>Qty</th><th>Amount</th></tr>%s</table>
<p><strong>Total: %s %s</strong></p>`,
		o.ID, rows.String(), paypal.FormatCents(o.TotalAmount), html.EscapeString(o.Currency))
	return mail.Message{
		Kind:    mail.KindOrderConfirmation,
		To:      o.UserEmail,
		Subject: fmt.Sprintf("Bookscape order #%d confirmed", o.ID),
		HTML:    body,
	}
}

func verifyEmailMail(email, link string) mail.Message {
	return mail.Message{
		Kind:    mail.KindVerifyEmail,
		To:      email,
		Subject: "Email Verification",
		HTML: fmt.Sprintf(`<p>Click the link to verify your email: <a href="%s">%s</a></p>
<p>The link expires in one hour.</p>`, html.EscapeString(link), html.EscapeString(link)),
	}
}

func passwordResetMail(email, link string) mail.Message {
	return mail.Message{
		Kind:    mail.KindPasswordReset,
		To:      email,
		Subject: "Password Reset Request",
		HTML: fmt.Sprintf(`<p>You can reset your password using this link: <a href="%s">%s</a></p>
<p>If you did not request this, please ignore this email.</p>`, html.EscapeString(link), html.EscapeString(link)),
	}
}
