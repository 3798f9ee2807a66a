package email

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/sirupsen/logrus"

	"github.com/brandon/alert-bridge/internal/config"
)

// Failure classes of a mailbox session. Returned errors wrap one of these.
var (
	ErrConnect = errors.New("imap connect failed")
	ErrAuth    = errors.New("imap login failed")
	ErrSelect  = errors.New("imap select failed")
	ErrSearch  = errors.New("imap search failed")
	ErrFetch   = errors.New("imap fetch failed")
	ErrAck     = errors.New("imap store failed")
)

// Session is an authenticated connection to one mailbox. It is opened at
// the start of a poll cycle and closed at its end.
type Session interface {
	Select(ctx context.Context, mailbox string) error
	SearchUnseenSince(ctx context.Context, since time.Time) ([]uint32, error)
	FetchRaw(ctx context.Context, uid uint32) ([]byte, error)
	MarkSeen(ctx context.Context, uid uint32) error
	Close() error
}

// IMAPClient opens mailbox sessions against the configured server
type IMAPClient struct {
	config  *config.MailConfig
	timeout time.Duration
	logger  *logrus.Logger
}

// NewIMAPClient creates a new IMAP client (does not connect immediately)
func NewIMAPClient(cfg *config.MailConfig, timeout time.Duration, logger *logrus.Logger) *IMAPClient {
	return &IMAPClient{
		config:  cfg,
		timeout: timeout,
		logger:  logger,
	}
}

// Open connects to the IMAP server and logs in. The caller owns the
// returned session and must Close it.
func (c *IMAPClient) Open(ctx context.Context) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnect, err)
	}

	addr := c.config.IMAPAddr()
	dialer := &net.Dialer{Timeout: c.timeout}

	var (
		cl  *client.Client
		err error
	)
	if c.config.IMAPTLS {
		cl, err = client.DialWithDialerTLS(dialer, addr, &tls.Config{
			ServerName: c.config.IMAPHost,
			MinVersion: tls.VersionTLS12,
		})
	} else {
		cl, err = client.DialWithDialer(dialer, addr)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrConnect, addr, err)
	}
	cl.Timeout = c.timeout

	s := &imapSession{client: cl, logger: c.logger}
	if c.logger.IsLevelEnabled(logrus.TraceLevel) {
		s.trace = c.logger.WriterLevel(logrus.TraceLevel)
		cl.SetDebug(s.trace)
	}

	if err := cl.Login(c.config.IMAPUsername, c.config.IMAPPassword); err != nil {
		s.Close() //nolint:errcheck
		return nil, fmt.Errorf("%w: %s: %v", ErrAuth, c.config.IMAPUsername, err)
	}

	c.logger.WithField("server", addr).Debug("Connected to IMAP server")
	return s, nil
}

// imapSession implements Session on top of a go-imap client
type imapSession struct {
	client *client.Client
	logger *logrus.Logger
	trace  io.WriteCloser
}

// Select opens the mailbox read-write so flags can be stored
func (s *imapSession) Select(ctx context.Context, mailbox string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrSelect, err)
	}

	mbox, err := s.client.Select(mailbox, false)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrSelect, mailbox, err)
	}

	s.logger.WithFields(logrus.Fields{
		"mailbox":  mailbox,
		"messages": mbox.Messages,
		"unseen":   mbox.Unseen,
	}).Debug("Selected mailbox")
	return nil
}

// SearchUnseenSince returns the UIDs of unseen messages received on or
// after since. IMAP SINCE only compares dates, so the window is widened
// to the start of that day.
func (s *imapSession) SearchUnseenSince(ctx context.Context, since time.Time) ([]uint32, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSearch, err)
	}

	uids, err := s.client.UidSearch(unseenSinceCriteria(since))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSearch, err)
	}
	return uids, nil
}

// FetchRaw returns the full RFC 822 message. BODY.PEEK leaves the \Seen
// flag untouched so an undelivered alert stays unseen.
func (s *imapSession) FetchRaw(ctx context.Context, uid uint32) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: uid %d: %v", ErrFetch, uid, err)
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uid)

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchUid, section.FetchItem()}

	messages := make(chan *imap.Message, 1)
	done := make(chan error, 1)

	go func() {
		done <- s.client.UidFetch(seqSet, items, messages)
	}()

	var raw []byte
	for msg := range messages {
		if raw != nil {
			continue
		}
		literal := msg.GetBody(section)
		if literal == nil {
			continue
		}
		body, err := io.ReadAll(literal)
		if err != nil {
			s.logger.WithError(err).WithField("uid", uid).Warn("Error reading literal")
			continue
		}
		raw = body
	}

	if err := <-done; err != nil {
		return nil, fmt.Errorf("%w: uid %d: %v", ErrFetch, uid, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: uid %d: no body returned", ErrFetch, uid)
	}

	return raw, nil
}

// unseenSinceCriteria builds UNSEEN SINCE <date>. The date is taken in UTC
// so it does not depend on the host's timezone.
func unseenSinceCriteria(since time.Time) *imap.SearchCriteria {
	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	criteria.Since = since.UTC()
	return criteria
}

// MarkSeen adds the \Seen flag to a message
func (s *imapSession) MarkSeen(ctx context.Context, uid uint32) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: uid %d: %v", ErrAck, uid, err)
	}

	seqSet := new(imap.SeqSet)
	seqSet.AddNum(uid)

	item := imap.FormatFlagsOp(imap.AddFlags, true)
	flags := []interface{}{imap.SeenFlag}

	if err := s.client.UidStore(seqSet, item, flags, nil); err != nil {
		return fmt.Errorf("%w: uid %d: %v", ErrAck, uid, err)
	}
	return nil
}

// Close logs out and releases the connection
func (s *imapSession) Close() error {
	if s.trace != nil {
		defer s.trace.Close()
	}
	if s.client == nil {
		return nil
	}

	err := s.client.Logout()
	s.client = nil
	if err != nil {
		return fmt.Errorf("imap logout failed: %w", err)
	}
	return nil
}
