package notify

import (
	"bufio"
	"context"
	"encoding/base64"
	"io"
	"mime"
	"net"
	"net/mail"
	"strconv"
	"strings"
	"sync"
	"testing"

	"yoyaku/internal/config"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type received struct {
	from string
	to   []string
	data string
}

// fakeSMTPServer accepts one session without STARTTLS or AUTH.
type fakeSMTPServer struct {
	ln       net.Listener
	mu       sync.Mutex
	messages []received
	rejectTo string
	done     chan struct{}
}

func startFakeSMTP(t *testing.T) *fakeSMTPServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	s := &fakeSMTPServer{ln: ln, done: make(chan struct{})}
	t.Cleanup(func() { ln.Close() })
	go s.serve()
	return s
}

func (s *fakeSMTPServer) port() int {
	return s.ln.Addr().(*net.TCPAddr).Port
}

func (s *fakeSMTPServer) serve() {
	defer close(s.done)
	conn, err := s.ln.Accept()
	if err != nil {
		return
	}
	defer conn.Close()

	r := bufio.NewReader(conn)
	reply := func(line string) { _, _ = io.WriteString(conn, line+"\r\n") }
	reply("220 fake ESMTP")

	var cur received
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		cmd := strings.TrimRight(line, "\r\n")
		upper := strings.ToUpper(cmd)
		switch {
		case strings.HasPrefix(upper, "EHLO"), strings.HasPrefix(upper, "HELO"):
			reply("250-fake")
			reply("250 8BITMIME")
		case strings.HasPrefix(upper, "MAIL FROM:"):
			cur = received{from: cmd[len("MAIL FROM:"):]}
			reply("250 OK")
		case strings.HasPrefix(upper, "RCPT TO:"):
			to := cmd[len("RCPT TO:"):]
			if s.rejectTo != "" && strings.Contains(to, s.rejectTo) {
				reply("550 no such user")
				continue
			}
			cur.to = append(cur.to, to)
			reply("250 OK")
		case upper == "DATA":
			reply("354 go ahead")
			var data strings.Builder
			for {
				l, err := r.ReadString('\n')
				if err != nil {
					return
				}
				if l == ".\r\n" {
					break
				}
				data.WriteString(l)
			}
			cur.data = data.String()
			s.mu.Lock()
			s.messages = append(s.messages, cur)
			s.mu.Unlock()
			reply("250 queued")
		case upper == "RSET", upper == "NOOP":
			reply("250 OK")
		case upper == "QUIT":
			reply("221 bye")
			return
		default:
			reply("502 not implemented")
		}
	}
}

func TestSMTPMailer_Send(t *testing.T) {
	srv := startFakeSMTP(t)
	logger := zerolog.New(io.Discard)
	m := NewSMTPMailer(config.MailConfig{Host: "127.0.0.1", Port: srv.port(), From: "noreply@example.com"}, &logger)

	err := m.Send(context.Background(), []string{"taro@example.com", "hanako@example.com"}, "お知らせ", "明日は休みです")
	require.NoError(t, err)
	<-srv.done

	srv.mu.Lock()
	defer srv.mu.Unlock()
	require.Len(t, srv.messages, 2)
	assert.Equal(t, []string{"<taro@example.com>"}, srv.messages[0].to)
	assert.Equal(t, []string{"<hanako@example.com>"}, srv.messages[1].to)

	msg, err := mail.ReadMessage(strings.NewReader(srv.messages[0].data))
	require.NoError(t, err)
	subject, err := new(mime.WordDecoder).DecodeHeader(msg.Header.Get("Subject"))
	require.NoError(t, err)
	assert.Equal(t, "お知らせ", subject)

	raw, err := io.ReadAll(msg.Body)
	require.NoError(t, err)
	body, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(string(raw), "\r\n", ""))
	require.NoError(t, err)
	assert.Equal(t, "明日は休みです", string(body))
}

func TestSMTPMailer_RejectedRecipient(t *testing.T) {
	srv := startFakeSMTP(t)
	srv.rejectTo = "ghost@example.com"
	logger := zerolog.New(io.Discard)
	m := NewSMTPMailer(config.MailConfig{Host: "127.0.0.1", Port: srv.port(), From: "noreply@example.com"}, &logger)

	err := m.Send(context.Background(), []string{"ghost@example.com"}, "s", "b")
	assert.Error(t, err)
}

func TestSMTPMailer_DialFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	logger := zerolog.New(io.Discard)
	m := NewSMTPMailer(config.MailConfig{Host: "127.0.0.1", Port: port, From: "a@example.com"}, &logger)
	err = m.Send(context.Background(), []string{"x@example.com"}, "s", "b")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "127.0.0.1:"+strconv.Itoa(port))
}

func TestSMTPMailer_NoRecipients(t *testing.T) {
	logger := zerolog.New(io.Discard)
	m := NewSMTPMailer(config.MailConfig{Host: "invalid.invalid", Port: 25}, &logger)
	assert.NoError(t, m.Send(context.Background(), nil, "s", "b"))
}

func TestBuildMessage_WrapsBody(t *testing.T) {
	msg := string(buildMessage("a@example.com", "b@example.com", "subject", strings.Repeat("x", 200)))
	for _, line := range strings.Split(msg, "\r\n") {
		assert.LessOrEqual(t, len(line), 78)
	}
}
