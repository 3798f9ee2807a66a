package bridge

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/brandon/alert-bridge/internal/config"
	"github.com/brandon/alert-bridge/internal/email"
	"github.com/brandon/alert-bridge/internal/render"
	"github.com/brandon/alert-bridge/pkg/types"
)

// Opener opens a mailbox session for one poll cycle
type Opener interface {
	Open(ctx context.Context) (email.Session, error)
}

// Notifier delivers one alert. A nil error means the alert was delivered.
type Notifier interface {
	Notify(ctx context.Context, alert types.Alert) error
}

// CycleReport summarizes one poll cycle
type CycleReport struct {
	ID               string
	Found            int
	Relevant         int
	NoImage          int
	Delivered        int
	Acknowledged     int
	Skipped          int
	DeliveryFailures int
	AckFailures      int
	// Err is set when the cycle was aborted before enumerating messages
	Err error
}

func (r CycleReport) fields() logrus.Fields {
	return logrus.Fields{
		"found":             r.Found,
		"relevant":          r.Relevant,
		"no_image":          r.NoImage,
		"delivered":         r.Delivered,
		"acknowledged":      r.Acknowledged,
		"skipped":           r.Skipped,
		"delivery_failures": r.DeliveryFailures,
		"ack_failures":      r.AckFailures,
	}
}

// Bridge polls the mailbox and forwards alert emails
type Bridge struct {
	config   *config.Config
	mailbox  Opener
	renderer *render.Renderer
	notifier Notifier
	logger   *logrus.Logger
	now      func() time.Time
}

// New creates a bridge
func New(cfg *config.Config, mailbox Opener, notifier Notifier, logger *logrus.Logger) *Bridge {
	return &Bridge{
		config:   cfg,
		mailbox:  mailbox,
		renderer: render.New(cfg.Link.InternalHost, cfg.Link.PublicHost),
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
}

// Run polls until ctx is cancelled, sleeping the poll interval between
// cycles no matter how long a cycle took
func (b *Bridge) Run(ctx context.Context) error {
	b.logger.WithFields(logrus.Fields{
		"interval": b.config.Poll.Interval.String(),
		"lookback": b.config.Poll.Lookback.String(),
		"mailbox":  b.config.Mail.Mailbox,
	}).Info("Starting alert bridge")

	for {
		b.RunCycle(ctx)

		timer := time.NewTimer(b.config.Poll.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			b.logger.Info("Alert bridge stopped")
			return nil
		case <-timer.C:
		}
	}
}

// RunCycle performs one open, process, close pass over the mailbox
func (b *Bridge) RunCycle(ctx context.Context) CycleReport {
	report := CycleReport{ID: uuid.NewString()}
	log := b.logger.WithField("cycle", report.ID)

	sess, err := b.mailbox.Open(ctx)
	if err != nil {
		report.Err = err
		log.WithError(err).Error("Failed to open mailbox session")
		return report
	}
	defer func() {
		if err := sess.Close(); err != nil {
			log.WithError(err).Warn("Failed to log out")
			return
		}
		log.Debug("Logout successful")
	}()

	if err := sess.Select(ctx, b.config.Mail.Mailbox); err != nil {
		report.Err = err
		log.WithError(err).Error("Failed to select mailbox")
		return report
	}

	since := b.now().Add(-b.config.Poll.Lookback)
	uids, err := sess.SearchUnseenSince(ctx, since)
	if err != nil {
		report.Err = err
		log.WithError(err).Error("Failed to search mailbox")
		return report
	}
	report.Found = len(uids)
	log.WithField("uids", uids).Info("Unseen messages")

	for _, uid := range uids {
		if ctx.Err() != nil {
			log.Info("Cycle interrupted")
			break
		}
		b.processMessage(ctx, log.WithField("uid", uid), sess, uid, &report)
	}

	log.WithFields(report.fields()).Info("Cycle finished")
	return report
}

// processMessage runs fetch, filter, extract, render, notify and
// acknowledge for one message. Failures skip the message.
func (b *Bridge) processMessage(ctx context.Context, log *logrus.Entry, sess email.Session, uid uint32, report *CycleReport) {
	raw, err := sess.FetchRaw(ctx, uid)
	if err != nil {
		report.Skipped++
		log.WithError(err).Warn("Failed to fetch message")
		return
	}
	candidate := types.Candidate{UID: uid, Raw: raw}

	msg, err := email.Parse(candidate.Raw)
	if err != nil {
		report.Skipped++
		log.WithError(err).Warn("Failed to parse message")
		return
	}
	msg.UID = candidate.UID

	log = log.WithFields(logrus.Fields{"from": msg.From, "subject": msg.Subject})
	if !email.IsRelevant(msg, b.config.Mail.Sender, b.config.Mail.ExcludedSubjects) {
		log.WithField("email", msg).Debug("Ignoring message")
		return
	}
	report.Relevant++

	extracted := email.Extract(msg)
	if !extracted.HasImage() {
		report.NoImage++
		log.Info("Alert has no screenshot, dropping")
		return
	}

	rendered, err := b.renderer.Render(extracted.HTMLBody)
	if err != nil {
		report.Skipped++
		log.WithError(err).Warn("Failed to render alert")
		return
	}

	alert := types.Alert{
		Summary: rendered.Summary,
		Link:    rendered.Link,
		Image:   extracted.Image,
	}
	// the image is excluded from the alert's JSON form
	log.WithFields(logrus.Fields{
		"alert":      alert,
		"image_type": extracted.ImageType,
		"image_size": len(alert.Image),
	}).Debug("Rendered alert")

	if err := b.notifier.Notify(ctx, alert); err != nil {
		report.DeliveryFailures++
		log.WithError(err).Warn("Failed to deliver alert, leaving message unseen")
		return
	}
	report.Delivered++

	if err := sess.MarkSeen(ctx, uid); err != nil {
		report.AckFailures++
		log.WithError(err).Error("Failed to mark message as read, it may be delivered again")
		return
	}
	report.Acknowledged++
	log.Info("Marked message as read")
}
