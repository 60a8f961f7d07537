package emailsvc

import (
	"fmt"
	"net/http"
	"net/mail"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/caffeinepub/diploma-smart-study-hub/core"
)

var (
	host     = "https://api.sendgrid.com"
	endpoint = "/v3/mail/send"
)

type sendgridService struct {
	key        string
	from       *sgmail.Email
	subjPrefix string
	logger     core.Logger
}

var _ core.EmailService = (*sendgridService)(nil)

func NewSendgridService(conf *core.Config, logger core.Logger) core.EmailService {
	return &sendgridService{
		key:        conf.SendgridAPIKey,
		from:       sgmail.NewEmail(conf.DefaultFromEmail.Name, conf.DefaultFromEmail.Address),
		subjPrefix: "[" + conf.AppName + "] ",
		logger:     logger,
	}
}

// NewService returns the sendgrid service when an API key is configured, the console one otherwise.
func NewService(conf *core.Config, logger core.Logger) core.EmailService {
	if conf.SendgridAPIKey == "" {
		return NewConsoleService(conf, logger)
	}
	return NewSendgridService(conf, logger)
}

func (svc sendgridService) SendMessages(messages ...*core.EmailMessage) {
	for _, msg := range messages {
		msg := msg
		go func() {
			if err := msg.Render(); err != nil {
				svc.logger.Error(fmt.Sprintf("rendering email: %v", err), err)
				return
			}
			if msg.HasRecipients() && msg.HasContent() {
				svc.send(*msg)
			}
		}()
	}
}

func (svc sendgridService) prepare(msg core.EmailMessage) *sgmail.SGMailV3 {
	p := sgmail.NewPersonalization()
	p.Subject = svc.subjPrefix + msg.Subject

	for _, to := range msg.To {
		p.AddTos(getSGEmail(to))
	}
	for _, cc := range msg.Cc {
		p.AddCCs(getSGEmail(cc))
	}
	for _, bcc := range msg.Bcc {
		p.AddBCCs(getSGEmail(bcc))
	}

	m := sgmail.NewV3Mail()
	m.SetFrom(svc.from)
	m.AddPersonalizations(p)

	m.AddContent(sgmail.NewContent("text/plain", msg.TextContent))
	if msg.HTMLContent != "" {
		m.AddContent(sgmail.NewContent("text/html", msg.HTMLContent))
	}
	return m
}

func getSGEmail(addr mail.Address) *sgmail.Email {
	return sgmail.NewEmail(addr.Name, addr.Address)
}

func (svc sendgridService) send(msg core.EmailMessage) {
	req := sendgrid.GetRequest(svc.key, endpoint, host)
	req.Method = http.MethodPost
	req.Body = sgmail.GetRequestBody(svc.prepare(msg))

	res, err := sendgrid.API(req)
	if err != nil {
		svc.logger.Error(fmt.Sprintf("sending email: %v", err), err)
	} else if res.StatusCode >= http.StatusBadRequest {
		svc.logger.Error(fmt.Sprintf("sending email - status: %d - Body: %s", res.StatusCode, res.Body))
	}
}
