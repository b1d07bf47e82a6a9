package membership

import (
	"fmt"
	"os"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.uber.org/zap"

	templates "github.com/hubdeck/hubdeck-api/templates/html"
)

// Template names the email variants the engine can dispatch
type Template string

// Email templates used by the membership engine
const (
	TemplateInviteRegistered   Template = "invite-registered"
	TemplateInviteUnregistered Template = "invite-unregistered"
	TemplateInviteResend       Template = "invite-resend"
	TemplateInviteExpired      Template = "invite-expired"
	TemplateMemberRemoved      Template = "member-removed"
	TemplateMemberLeft         Template = "member-left"
	TemplateAdminPromoted      Template = "admin-promoted"
	TemplateAdminDemoted       Template = "admin-demoted"
	TemplateOwnerChangedOld    Template = "owner-changed-old"
	TemplateOwnerChangedNew    Template = "owner-changed-new"
)

// Notifier dispatches transactional email. The engine never blocks its own
// success or failure on the outcome; implementations log and swallow errors.
type Notifier interface {
	Send(template Template, recipient string, data map[string]interface{})
}

// SendGridNotifier sends email through sendgrid in a background goroutine
type SendGridNotifier struct {
	FromName string
	FromAddr string
}

// NewSendGridNotifier returns the production notifier
func NewSendGridNotifier() *SendGridNotifier {
	return &SendGridNotifier{
		FromName: "HubDeck",
		FromAddr: "no-reply@hubdeck.io",
	}
}

// Send renders and dispatches the template in the background (non-blocking)
func (n *SendGridNotifier) Send(template Template, recipient string, data map[string]interface{}) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				zap.S().Errorw("panic in email send", "template", template, "recipient", recipient, "panic", r)
			}
		}()

		subject, body := renderTemplate(template, data)

		from := mail.NewEmail(n.FromName, n.FromAddr)
		to := mail.NewEmail(stringValue(data, "name"), recipient)
		htmlContent := templates.RenderGenericEmail(subject, body)
		if link := stringValue(data, "acceptLink"); link != "" {
			htmlContent = templates.RenderInviteEmail(subject, body, link)
		}
		message := mail.NewSingleEmail(from, subject, to, body, htmlContent)

		sendgridAPIKey := os.Getenv("SENDGRID_API_KEY")
		if sendgridAPIKey == "" {
			zap.S().Errorw("SENDGRID_API_KEY not set, cannot send email", "recipient", recipient)
			return
		}

		client := sendgrid.NewSendClient(sendgridAPIKey)
		response, err := client.Send(message)
		if err != nil {
			zap.S().Errorw("failed to send email", "template", template, "recipient", recipient, "error", err)
			return
		}

		if response.StatusCode >= 200 && response.StatusCode < 300 {
			zap.S().Infow("email sent", "template", template, "recipient", recipient, "statusCode", response.StatusCode)
		} else {
			zap.S().Warnw("email sent with non-2xx status", "template", template, "recipient", recipient, "statusCode", response.StatusCode, "body", response.Body)
		}
	}()
}

func renderTemplate(template Template, data map[string]interface{}) (subject, body string) {
	teamName := stringValue(data, "teamName")
	memberName := stringValue(data, "memberName")

	switch template {
	case TemplateInviteRegistered:
		subject = fmt.Sprintf("You've been invited to join %s on HubDeck", teamName)
		body = fmt.Sprintf("You've been invited to join the team %s as %s.\nThe invitation expires in 7 days.", teamName, stringValue(data, "role"))
	case TemplateInviteUnregistered:
		subject = fmt.Sprintf("You've been invited to join %s on HubDeck", teamName)
		body = fmt.Sprintf("You've been invited to join the team %s as %s.\nCreate a HubDeck account with this email address to accept.\nThe invitation expires in 7 days.", teamName, stringValue(data, "role"))
	case TemplateInviteResend:
		subject = fmt.Sprintf("Reminder: your invitation to %s on HubDeck", teamName)
		body = fmt.Sprintf("Your invitation to join the team %s is still open.\nA fresh link was issued; it expires in 7 days.", teamName)
	case TemplateInviteExpired:
		subject = fmt.Sprintf("Your invitation to %s has expired", teamName)
		body = fmt.Sprintf("The invitation to join the team %s has expired.\nAsk a team admin to send a new one.", teamName)
	case TemplateMemberRemoved:
		subject = fmt.Sprintf("A member was removed from %s", teamName)
		body = fmt.Sprintf("%s was removed from the team %s.", memberName, teamName)
	case TemplateMemberLeft:
		subject = fmt.Sprintf("A member left %s", teamName)
		body = fmt.Sprintf("%s left the team %s.", memberName, teamName)
	case TemplateAdminPromoted:
		subject = fmt.Sprintf("You are now an admin of %s", teamName)
		body = fmt.Sprintf("You've been promoted to admin of the team %s.\nAdmins have access to all team workspaces.", teamName)
	case TemplateAdminDemoted:
		subject = fmt.Sprintf("Your role in %s changed", teamName)
		body = fmt.Sprintf("Your role in the team %s is now member.", teamName)
	case TemplateOwnerChangedOld:
		subject = fmt.Sprintf("Ownership of %s was transferred", teamName)
		body = fmt.Sprintf("You transferred ownership of the team %s to %s.\nYou remain an admin.", teamName, memberName)
	case TemplateOwnerChangedNew:
		subject = fmt.Sprintf("You are now the owner of %s", teamName)
		body = fmt.Sprintf("Ownership of the team %s was transferred to you.", teamName)
	default:
		subject = "HubDeck notification"
		body = stringValue(data, "message")
	}
	return subject, body
}

func stringValue(data map[string]interface{}, key string) string {
	if data == nil {
		return ""
	}
	if v, ok := data[key].(string); ok {
		return v
	}
	return ""
}
