// Package email sends best-effort SMTP notifications. Failures are
// logged and never surfaced to the request that triggered them.
package email

import (
	"fmt"
	"net/smtp"
	"time"

	"github.com/jordan-wright/email"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/vchernov/bank-cards/internal/config"
)

// Sender handles sending emails via SMTP
type Sender struct {
	cfg    *config.Config
	logger *logrus.Logger
}

// NewSender creates a new email sender
func NewSender(cfg *config.Config, logger *logrus.Logger) *Sender {
	return &Sender{
		cfg:    cfg,
		logger: logger,
	}
}

// SendWelcome greets a newly registered user.
func (s *Sender) SendWelcome(to, username string) {
	body := fmt.Sprintf(
		"Dear %s,\n\n"+
			"Your account has been created. You can now issue virtual cards\n"+
			"and manage them from your account.\n",
		username,
	)
	s.send(to, "Welcome to Bank Cards", body)
}

// SendDepositReceipt confirms a deposit to a card.
func (s *Sender) SendDepositReceipt(to, username, cardMask string, amount, balance decimal.Decimal) {
	body := fmt.Sprintf(
		"Dear %s,\n\n"+
			"Your card %s has been credited with %s.\n"+
			"Transaction time: %s\n"+
			"Current balance: %s\n",
		username, cardMask, amount.StringFixed(2),
		time.Now().Format("2006-01-02 15:04:05"), balance.StringFixed(2),
	)
	s.send(to, "Deposit Notification", body)
}

// SendTransferReceipt confirms a transfer between two cards.
func (s *Sender) SendTransferReceipt(to, username, fromMask, toMask string, amount decimal.Decimal) {
	body := fmt.Sprintf(
		"Dear %s,\n\n"+
			"An amount of %s has been transferred from card %s to card %s.\n"+
			"Transaction time: %s\n",
		username, amount.StringFixed(2), fromMask, toMask,
		time.Now().Format("2006-01-02 15:04:05"),
	)
	s.send(to, "Transfer Notification", body)
}

// SendBlockRequested confirms that a card block request was filed.
func (s *Sender) SendBlockRequested(to, username, cardMask string) {
	body := fmt.Sprintf(
		"Dear %s,\n\n"+
			"A block has been requested for your card %s.\n"+
			"The card will be blocked once an administrator approves the request.\n"+
			"If you did not request this, please contact support.\n",
		username, cardMask,
	)
	s.send(to, "Card Block Request", body)
}

func (s *Sender) send(to, subject, body string) {
	e := email.NewEmail()
	e.From = s.cfg.SenderEmail
	e.To = []string{to}
	e.Subject = subject
	e.Text = []byte(body + "\nBest regards,\nBank Cards")

	addr := fmt.Sprintf("%s:%s", s.cfg.SMTPHost, s.cfg.SMTPPort)
	auth := smtp.PlainAuth("", s.cfg.SMTPUsername, s.cfg.SMTPPassword, s.cfg.SMTPHost)
	if err := e.Send(addr, auth); err != nil {
		s.logger.Errorf("Failed to send email to %s: %v", to, err)
		return
	}
	s.logger.Infof("Email sent to %s: %s", to, subject)
}
