package mailer

import (
	"fmt"
	"time"
)

// Template names recorded in the email log.
const (
	TemplateMembershipWelcome   = "membership_welcome"
	TemplateTicketConfirmation  = "ticket_confirmation"
	TemplateOrderConfirmation   = "order_confirmation"
	TemplateRenewalUpcoming     = "renewal_upcoming"
	TemplateRenewalSuccess      = "renewal_success"
	TemplateRenewalRetry        = "renewal_retry"
	TemplateRenewalFinalFailure = "renewal_final_failure"
	TemplateCardProblem         = "card_problem"
	TemplateAdminNotification   = "admin_notification"
)

const dateLayout = "2 January 2006"

func formatAmount(amount int64, currency string) string {
	return fmt.Sprintf("%.2f %s", float64(amount)/100, currency)
}

func wrap(body string) string {
	return fmt.Sprintf(`<div style="font-family:sans-serif;max-width:600px;margin:0 auto">
<h2>Dice Bastion</h2>
%s
<p style="color:#888;font-size:12px">Dice Bastion &middot; your friendly local games venue</p>
</div>`, body)
}

func MembershipWelcome(name, plan string, endDate time.Time, autoRenew bool) Message {
	renewal := "Your membership will not renew automatically."
	if autoRenew {
		renewal = fmt.Sprintf("It will renew automatically on %s.", endDate.Format(dateLayout))
	}
	body := fmt.Sprintf(`<p>Hi %s,</p>
<p>Welcome aboard! Your <strong>%s</strong> membership is now active and runs until %s.</p>
<p>%s</p>
<p>See you at the tables.</p>`, name, plan, endDate.Format(dateLayout), renewal)

	return Message{
		Subject:  "Welcome to Dice Bastion",
		HTML:     wrap(body),
		Template: TemplateMembershipWelcome,
	}
}

func TicketConfirmation(name, eventTitle string, startsAt time.Time) Message {
	body := fmt.Sprintf(`<p>Hi %s,</p>
<p>Your ticket for <strong>%s</strong> on %s is confirmed.</p>
<p>Show this email on the door.</p>`, name, eventTitle, startsAt.Format(dateLayout))

	return Message{
		Subject:  "Your ticket for " + eventTitle,
		HTML:     wrap(body),
		Template: TemplateTicketConfirmation,
	}
}

func OrderConfirmation(name, orderRef string, total int64, currency string) Message {
	body := fmt.Sprintf(`<p>Hi %s,</p>
<p>Thanks for your order <strong>%s</strong> (%s). It's ready to collect at the venue.</p>`,
		name, orderRef, formatAmount(total, currency))

	return Message{
		Subject:  "Order confirmed",
		HTML:     wrap(body),
		Template: TemplateOrderConfirmation,
	}
}

func RenewalUpcoming(name, plan string, endDate time.Time, amount int64, currency string) Message {
	body := fmt.Sprintf(`<p>Hi %s,</p>
<p>Your <strong>%s</strong> membership renews on %s. We'll charge %s to your stored card.</p>
<p>No action needed. To change your payment method or turn off auto-renewal, visit your account page.</p>`,
		name, plan, endDate.Format(dateLayout), formatAmount(amount, currency))

	return Message{
		Subject:  "Your membership renews soon",
		HTML:     wrap(body),
		Template: TemplateRenewalUpcoming,
	}
}

func RenewalSuccess(name, plan string, newEndDate time.Time, amount int64, currency string) Message {
	body := fmt.Sprintf(`<p>Hi %s,</p>
<p>Your <strong>%s</strong> membership has renewed. We charged %s and your membership now runs until %s.</p>`,
		name, plan, formatAmount(amount, currency), newEndDate.Format(dateLayout))

	return Message{
		Subject:  "Membership renewed",
		HTML:     wrap(body),
		Template: TemplateRenewalSuccess,
	}
}

func RenewalRetry(name string, attempt, maxAttempts int) Message {
	body := fmt.Sprintf(`<p>Hi %s,</p>
<p>We couldn't take your membership renewal payment (attempt %d of %d). We'll try again soon.</p>
<p>If your card details have changed, please update your payment method.</p>`,
		name, attempt, maxAttempts)

	return Message{
		Subject:  "Membership renewal payment failed",
		HTML:     wrap(body),
		Template: TemplateRenewalRetry,
	}
}

func RenewalFinalFailure(name string) Message {
	body := fmt.Sprintf(`<p>Hi %s,</p>
<p>We couldn't take your membership renewal payment after several attempts, so auto-renewal has
been switched off.</p>
<p>To keep your membership, please renew manually or update your payment method.</p>`, name)

	return Message{
		Subject:  "Membership auto-renewal disabled",
		HTML:     wrap(body),
		Template: TemplateRenewalFinalFailure,
	}
}

func CardProblem(name string) Message {
	body := fmt.Sprintf(`<p>Hi %s,</p>
<p>Your stored card was declined as invalid or expired, so auto-renewal has been switched off.</p>
<p>Please update your payment method to keep your membership renewing.</p>`, name)

	return Message{
		Subject:  "Please update your payment method",
		HTML:     wrap(body),
		Template: TemplateCardProblem,
	}
}

func AdminNotification(subject, detail string) Message {
	return Message{
		Subject:  "[Dice Bastion] " + subject,
		HTML:     wrap("<p>" + detail + "</p>"),
		Template: TemplateAdminNotification,
	}
}
