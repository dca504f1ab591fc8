package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/smtp"
	"strconv"
	"time"

	"github.com/google/uuid"
	"gopkg.in/gomail.v2"
)

const smtpDialTimeout = 10 * time.Second

// SMTPNotifier sends mail through an SMTP relay. Port 465 uses implicit
// TLS; other ports upgrade with STARTTLS when the relay offers it.
type SMTPNotifier struct {
	host     string
	port     int
	username string
	password string
	from     string
	fromName string
}

// NewSMTPNotifier creates a notifier for the given relay
func NewSMTPNotifier(host string, port int, username, password, from, fromName string) *SMTPNotifier {
	return &SMTPNotifier{
		host:     host,
		port:     port,
		username: username,
		password: password,
		from:     from,
		fromName: fromName,
	}
}

func (n *SMTPNotifier) compose(msg Message) *gomail.Message {
	m := gomail.NewMessage()
	m.SetHeader("From", m.FormatAddress(n.from, n.fromName))
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetHeader("Message-ID", fmt.Sprintf("<%s@%s>", msg.ID, domainOf(n.from)))
	m.SetBody("text/html", msg.HTML)
	return m
}

// Send delivers msg over SMTP. The connection carries ctx's deadline and is
// closed as soon as ctx ends, so a stalled relay cannot outlive the caller.
func (n *SMTPNotifier) Send(ctx context.Context, msg Message) (*Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}

	err := n.deliver(ctx, n.compose(msg))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		return nil, fmt.Errorf("failed to send email: %w", err)
	}
	return &Receipt{MessageID: msg.ID}, nil
}

func (n *SMTPNotifier) deliver(ctx context.Context, m *gomail.Message) error {
	addr := net.JoinHostPort(n.host, strconv.Itoa(n.port))
	tlsConfig := &tls.Config{ServerName: n.host}
	dialer := &net.Dialer{Timeout: smtpDialTimeout}

	var conn net.Conn
	var err error
	if n.port == 465 {
		conn, err = (&tls.Dialer{NetDialer: dialer, Config: tlsConfig}).DialContext(ctx, "tcp", addr)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return err
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	c, err := smtp.NewClient(conn, n.host)
	if err != nil {
		_ = conn.Close()
		return err
	}
	defer c.Close()

	if n.port != 465 {
		if ok, _ := c.Extension("STARTTLS"); ok {
			if err := c.StartTLS(tlsConfig); err != nil {
				return err
			}
		}
	}
	if n.username != "" {
		if ok, _ := c.Extension("AUTH"); ok {
			if err := c.Auth(smtp.PlainAuth("", n.username, n.password, n.host)); err != nil {
				return err
			}
		}
	}

	if err := gomail.Send(smtpSender{c}, m); err != nil {
		return err
	}
	return c.Quit()
}

// smtpSender adapts an open client to gomail.Sender
type smtpSender struct {
	c *smtp.Client
}

func (s smtpSender) Send(from string, to []string, msg io.WriterTo) error {
	if err := s.c.Mail(from); err != nil {
		return err
	}
	for _, addr := range to {
		if err := s.c.Rcpt(addr); err != nil {
			return err
		}
	}

	w, err := s.c.Data()
	if err != nil {
		return err
	}
	if _, err := msg.WriteTo(w); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}
