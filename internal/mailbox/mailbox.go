// Package mailbox polls an IMAP inbox for replies to outreach email.
package mailbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-message/mail"
)

// Reply is one unseen inbound email, reduced to what ingestion needs.
type Reply struct {
	From    string
	Subject string
	Content string
}

// Poller fetches unseen messages over IMAP. Each poll opens a fresh
// connection; reply volume is low enough that holding an IDLE session
// is not worth the reconnect handling.
type Poller struct {
	addr     string
	username string
	password string
	logger   *slog.Logger
}

func NewPoller(addr, username, password string, logger *slog.Logger) *Poller {
	return &Poller{
		addr:     addr,
		username: username,
		password: password,
		logger:   logger.With("component", "mailbox"),
	}
}

// Configured reports whether the poller has credentials to work with.
func (p *Poller) Configured() bool {
	return p.addr != "" && p.username != "" && p.password != ""
}

// FetchUnseen returns unseen inbox messages. Fetching marks them seen
// on the server, so each reply is returned exactly once.
func (p *Poller) FetchUnseen(ctx context.Context) ([]Reply, error) {
	if !p.Configured() {
		return nil, errors.New("mailbox poller not configured")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c, err := client.DialTLS(p.addr, nil)
	if err != nil {
		return nil, fmt.Errorf("dial imap %s: %w", p.addr, err)
	}
	defer c.Logout()

	if err := c.Login(p.username, p.password); err != nil {
		return nil, fmt.Errorf("imap login: %w", err)
	}
	if _, err := c.Select("INBOX", false); err != nil {
		return nil, fmt.Errorf("select inbox: %w", err)
	}

	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	ids, err := c.Search(criteria)
	if err != nil {
		return nil, fmt.Errorf("search unseen: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(ids...)

	section := &imap.BodySectionName{}
	items := []imap.FetchItem{section.FetchItem()}
	messages := make(chan *imap.Message, len(ids))
	done := make(chan error, 1)
	go func() {
		done <- c.Fetch(seqset, items, messages)
	}()

	var replies []Reply
	for msg := range messages {
		reply, err := parseMessage(msg.GetBody(section))
		if err != nil {
			p.logger.Warn("skipping unparseable message", "error", err)
			continue
		}
		replies = append(replies, reply)
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("fetch messages: %w", err)
	}

	p.logger.Info("fetched unseen replies", "count", len(replies))
	return replies, nil
}

func parseMessage(r io.Reader) (Reply, error) {
	if r == nil {
		return Reply{}, errors.New("empty body section")
	}
	mr, err := mail.CreateReader(r)
	if err != nil {
		return Reply{}, fmt.Errorf("create mail reader: %w", err)
	}

	var reply Reply
	if addrs, err := mr.Header.AddressList("From"); err == nil && len(addrs) > 0 {
		reply.From = addrs[0].Address
	}
	if subject, err := mr.Header.Subject(); err == nil {
		reply.Subject = subject
	}

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Reply{}, fmt.Errorf("read mail part: %w", err)
		}
		if _, ok := part.Header.(*mail.InlineHeader); ok && reply.Content == "" {
			body, err := io.ReadAll(part.Body)
			if err != nil {
				return Reply{}, fmt.Errorf("read mail body: %w", err)
			}
			reply.Content = string(body)
		}
	}

	if reply.From == "" {
		return Reply{}, errors.New("message has no From address")
	}
	return reply, nil
}
