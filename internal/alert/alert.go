// Copyright 2021 The go-lpc Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package alert sends mail notifications to the shifters when a
// digitizer needs attention.
package alert // import "github.com/go-lpc/mca/internal/alert"

import (
	"crypto/tls"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/go-daq/tdaq/log"
	mail "gopkg.in/gomail.v2"
)

// MaxAlerts is the default number of mails sent per alert subject.
const MaxAlerts = 5

// Mailer sends alert mails through a SMTP server.
type Mailer struct {
	Usr  string
	Pwd  string
	Srv  string
	Port int
	Tgts []string

	Max int // maximum number of mails per subject
	Msg log.MsgStream

	mu     sync.Mutex
	alerts map[string]int
	send   func(*mail.Message) error
}

// FromEnv creates a mailer configured from the MAIL_USERNAME,
// MAIL_PASSWORD, MAIL_SERVER, MAIL_PORT and MAIL_TGTS environment
// variables.
func FromEnv(msg log.MsgStream) *Mailer {
	var tgts []string
	for _, v := range strings.Split(os.Getenv("MAIL_TGTS"), ",") {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		tgts = append(tgts, v)
	}
	return &Mailer{
		Usr:  os.Getenv("MAIL_USERNAME"),
		Pwd:  os.Getenv("MAIL_PASSWORD"),
		Srv:  os.Getenv("MAIL_SERVER"),
		Port: atoi(os.Getenv("MAIL_PORT")),
		Tgts: tgts,
		Max:  MaxAlerts,
		Msg:  msg,
	}
}

func (m *Mailer) valid() error {
	if m.Usr == "" || m.Pwd == "" || m.Srv == "" || m.Port == 0 || len(m.Tgts) == 0 {
		return fmt.Errorf("alert: missing mail credentials")
	}
	return nil
}

// Alert sends a mail with the provided subject and body.
// Once the maximum number of mails for a subject has been sent, Alert
// only logs the alert.
func (m *Mailer) Alert(subject, body string) error {
	if m.Msg != nil {
		m.Msg.Warnf("alert: %s", subject)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.alerts == nil {
		m.alerts = make(map[string]int)
	}
	m.alerts[subject]++
	max := m.Max
	if max <= 0 {
		max = MaxAlerts
	}
	if m.alerts[subject] > max {
		return nil
	}

	err := m.valid()
	if err != nil {
		return fmt.Errorf("alert: could not send mail %q: %w", subject, err)
	}

	msg := mail.NewMessage()
	msg.SetHeader("From", m.Usr)
	msg.SetHeader("Bcc", m.Tgts...)
	msg.SetHeader("Subject", "[caen] "+subject)
	msg.SetBody("text/plain", body)

	send := m.send
	if send == nil {
		send = m.dialAndSend
	}
	err = send(msg)
	if err != nil {
		return fmt.Errorf("alert: could not send mail %q: %w", subject, err)
	}
	return nil
}

func (m *Mailer) dialAndSend(msg *mail.Message) error {
	dial := mail.NewDialer(m.Srv, m.Port, m.Usr, m.Pwd)
	dial.TLSConfig = &tls.Config{
		InsecureSkipVerify: true,
	}
	return dial.DialAndSend(msg)
}

// Reset resets the number of mails sent for subject.
func (m *Mailer) Reset(subject string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.alerts, subject)
}

func atoi(s string) int {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return v
}
