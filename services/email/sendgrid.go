package emailsvc

import (
	"fmt"
	"net/http"
	"net/mail"
	"strings"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/trezcool/learninghub/core"
)

// categoryPlain tags messages sent without a template.
const categoryPlain = "plain"

// codeTemplates carry one-time codes: links in them must not be rewritten by click tracking.
var codeTemplates = map[string]bool{
	"confirm_email":  true,
	"reset_password": true,
}

// SendgridService delivers emails through the SendGrid v3 API.
// Every message is tagged with the app and its template so delivery stats can be split per email kind.
type SendgridService struct {
	conf    *core.Config
	client  *sendgrid.Client
	from    *sgmail.Email
	appTag  string
	logger  core.Logger
	sandbox bool
}

var _ core.EmailService = (*SendgridService)(nil)

func NewSendgridService(conf *core.Config, logger core.Logger) *SendgridService {
	from := conf.DefaultFromEmail()
	return &SendgridService{
		conf:    conf,
		client:  sendgrid.NewSendClient(conf.SendgridApiKey),
		from:    sgmail.NewEmail(from.Name, from.Address),
		appTag:  strings.ToLower(strings.Join(strings.Fields(conf.AppName), "-")),
		logger:  logger,
		sandbox: conf.TestMode,
	}
}

func (svc *SendgridService) SendMessages(messages ...*core.EmailMessage) {
	for _, msg := range messages {
		msg := msg
		go func() {
			if err := msg.Render(svc.conf); err != nil {
				svc.logger.Error(fmt.Sprintf("rendering %s email: %v", templateOf(*msg), err), err)
				return
			}
			if msg.HasRecipients() && msg.HasContent() {
				svc.send(*msg)
			}
		}()
	}
}

func templateOf(msg core.EmailMessage) string {
	if msg.TemplateName == "" {
		return categoryPlain
	}
	return msg.TemplateName
}

// subject prefixes the app name unless the caller already did.
func (svc *SendgridService) subject(s string) string {
	prefix := "[" + svc.conf.AppName + "]"
	if svc.conf.AppName == "" || strings.HasPrefix(s, prefix) {
		return s
	}
	return prefix + " " + s
}

func (svc *SendgridService) prepare(msg core.EmailMessage) *sgmail.SGMailV3 {
	tmpl := templateOf(msg)

	p := sgmail.NewPersonalization()
	p.Subject = svc.subject(msg.Subject)
	p.SetCustomArg("template", tmpl)
	for _, to := range msg.To {
		p.AddTos(sgEmail(to))
	}
	for _, cc := range msg.Cc {
		p.AddCCs(sgEmail(cc))
	}
	for _, bcc := range msg.Bcc {
		p.AddBCCs(sgEmail(bcc))
	}

	m := sgmail.NewV3Mail()
	m.SetFrom(svc.from)
	m.AddPersonalizations(p)
	m.AddCategories(svc.appTag, tmpl)

	m.AddContent(sgmail.NewContent("text/plain", msg.TextContent))
	if msg.HTMLContent != "" {
		m.AddContent(sgmail.NewContent("text/html", msg.HTMLContent))
	}

	if codeTemplates[tmpl] {
		m.SetTrackingSettings(sgmail.NewTrackingSettings().
			SetClickTracking(sgmail.NewClickTrackingSetting().SetEnable(false).SetEnableText(false)))
	}
	if svc.sandbox {
		m.SetMailSettings(sgmail.NewMailSettings().SetSandboxMode(sgmail.NewSetting(true)))
	}
	return m
}

func sgEmail(addr mail.Address) *sgmail.Email {
	return sgmail.NewEmail(addr.Name, addr.Address)
}

func (svc *SendgridService) send(msg core.EmailMessage) {
	tmpl := templateOf(msg)
	res, err := svc.client.Send(svc.prepare(msg))
	if err != nil {
		svc.logger.Error(fmt.Sprintf("sending %s email: %v", tmpl, err), err)
		return
	}
	if res.StatusCode >= http.StatusBadRequest {
		svc.logger.Error(fmt.Sprintf("sending %s email - status: %d - body: %s", tmpl, res.StatusCode, res.Body))
	}
}
