// Package emailsvc sends the notification emails: printed to the console in development, through sendgrid otherwise.
package emailsvc

import (
	"fmt"
	"log"
	"mime/multipart"
	"net/mail"
	"net/textproto"
	"strings"
	"sync"
	"time"

	"github.com/caffeinepub/diploma-smart-study-hub/core"
)

type consoleService struct {
	defaultFromEmail mail.Address
	subjPrefix       string
	logger           core.Logger
	disableOutput    bool
}

var _ core.EmailService = (*consoleService)(nil)

func NewConsoleService(conf *core.Config, logger core.Logger) core.EmailService {
	return &consoleService{
		defaultFromEmail: conf.DefaultFromEmail,
		subjPrefix:       "[" + conf.AppName + "] ",
		logger:           logger,
	}
}

func (svc consoleService) SendMessages(messages ...*core.EmailMessage) {
	for _, msg := range messages {
		go svc.sendMessage(msg)
	}
}

func (svc consoleService) sendMessage(msg *core.EmailMessage) bool {
	if err := msg.Render(); err != nil {
		svc.logger.Error(fmt.Sprintf("rendering email: %v", err), err)
		return false
	}
	if msg.HasRecipients() && msg.HasContent() {
		svc.send(*msg)
		return true
	}
	return false
}

func (svc consoleService) send(msg core.EmailMessage) {
	body := new(strings.Builder)

	// Write mail header
	_, _ = fmt.Fprintf(body, "From: %s\r\n", svc.defaultFromEmail.String())
	_, _ = fmt.Fprint(body, "MIME-Version: 1.0\r\n")
	_, _ = fmt.Fprintf(body, "Date: %s\r\n", time.Now().Format(time.RFC1123Z))
	_, _ = fmt.Fprintf(body, "Subject: %s\r\n", svc.subjPrefix+msg.Subject)
	_, _ = fmt.Fprintf(body, "To: %s\r\n", joinAddresses(msg.To))
	_, _ = fmt.Fprintf(body, "CC: %s\r\n", joinAddresses(msg.Cc))
	_, _ = fmt.Fprintf(body, "BCC: %s\r\n", joinAddresses(msg.Bcc))

	altW := multipart.NewWriter(body)
	_, _ = fmt.Fprintf(body, "Content-Type: multipart/alternative; boundary=%s\r\n\r\n", altW.Boundary())

	if w, err := altW.CreatePart(textproto.MIMEHeader{"Content-Type": {"text/plain"}}); err == nil {
		_, _ = fmt.Fprintf(w, "%s\r\n", msg.TextContent)
	}
	if msg.HTMLContent != "" {
		if w, err := altW.CreatePart(textproto.MIMEHeader{"Content-Type": {"text/html"}}); err == nil {
			_, _ = fmt.Fprintf(w, "%s\r\n", msg.HTMLContent)
		}
	}
	_ = altW.Close()

	if !svc.disableOutput {
		log.Println(body.String())
	}
}

func joinAddresses(addrs []mail.Address) string {
	toJoin := make([]string, 0, len(addrs))
	for _, a := range addrs {
		toJoin = append(toJoin, a.String())
	}
	return strings.Join(toJoin, ", ")
}

// ConsoleServiceMock records the messages it sends, synchronously & without output.
type ConsoleServiceMock struct {
	consoleService
	mu   sync.Mutex
	sent []core.EmailMessage
}

func NewConsoleServiceMock(conf *core.Config, logger core.Logger) *ConsoleServiceMock {
	return &ConsoleServiceMock{
		consoleService: consoleService{
			defaultFromEmail: conf.DefaultFromEmail,
			subjPrefix:       "[" + conf.AppName + "] ",
			logger:           logger,
			disableOutput:    true,
		},
	}
}

func (svc *ConsoleServiceMock) SendMessages(messages ...*core.EmailMessage) {
	for _, msg := range messages {
		// run synchronously
		if svc.sendMessage(msg) {
			svc.mu.Lock()
			svc.sent = append(svc.sent, *msg)
			svc.mu.Unlock()
		}
	}
}

// SentMessages returns the messages sent so far.
func (svc *ConsoleServiceMock) SentMessages() []core.EmailMessage {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	return append([]core.EmailMessage(nil), svc.sent...)
}

func (svc *ConsoleServiceMock) Reset() {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	svc.sent = nil
}
