package dispatch

import (
	"context"
	"errors"
	"strings"

	"remibot/internal/remind"
	logx "remibot/pkg/logx"
)

// deliver attempts every channel the reminder selects and appends one
// delivery record per attempt, success or not. Failed attempts are retried
// naturally on later ticks because the dedup gate only honors sent records.
func (s *Service) deliver(ctx context.Context, d Due) {
	r := d.Reminder

	// Legacy rows without a channel default to Telegram.
	toTelegram := r.Channel == remind.ChannelTelegram || r.Channel == remind.ChannelBoth || r.Channel == ""
	toEmail := r.Channel == remind.ChannelEmail || r.Channel == remind.ChannelBoth

	if toTelegram {
		err := s.chat.Send(ctx, r.ChatID, telegramBody(r.Message))
		s.record(ctx, r, remind.ChannelTelegram, err)
	}
	if toEmail {
		err := s.sendMail(ctx, r)
		s.record(ctx, r, remind.ChannelEmail, err)
	}
}

func (s *Service) sendMail(ctx context.Context, r remind.Reminder) error {
	if s.mail == nil || !s.mail.Enabled() {
		return errors.New("email channel not configured")
	}
	if strings.TrimSpace(r.Email) == "" {
		return errors.New("reminder has no email address")
	}
	return s.mail.Send(ctx, r.Email, mailSubject(r.Message), r.Message)
}

func (s *Service) record(ctx context.Context, r remind.Reminder, channel remind.Channel, sendErr error) {
	rec := remind.DeliveryRecord{
		ReminderID:   r.ID,
		ScheduledFor: r.FireAt,
		FiredAt:      s.clk.Now(),
		Channel:      channel,
		Outcome:      remind.OutcomeSent,
	}
	if sendErr != nil {
		rec.Outcome = remind.OutcomeFailed
		rec.ErrorDetail = sendErr.Error()
		s.log.Warn("reminder send failed",
			logx.String("reminder", r.ID),
			logx.String("channel", string(channel)),
			logx.Err(sendErr))
	} else {
		s.log.Info("reminder sent",
			logx.String("reminder", r.ID),
			logx.String("channel", string(channel)))
	}

	if err := s.store.AppendDelivery(ctx, rec); err != nil {
		s.log.Error("delivery record write failed", logx.String("reminder", r.ID), logx.Err(err))
	}
}

var htmlEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

func telegramBody(message string) string {
	return "⏰ <b>Recordatorio</b>\n\n" + htmlEscaper.Replace(message)
}

func mailSubject(message string) string {
	subject := message
	if runes := []rune(subject); len(runes) > 60 {
		subject = string(runes[:60]) + "…"
	}
	return "Recordatorio: " + subject
}
