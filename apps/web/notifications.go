package main

import (
	"context"
	"time"

	"github.com/Maringouin10/foretkeper/libs/mailer"
)

const notificationTimeout = 5 * time.Second

// notifyNewReport mails REPORT_NOTIFY_EMAIL about a saved report. Failures
// are logged and never reach the reporter.
func (a *App) notifyNewReport(ctx context.Context, lang string, report Report) {
	if a.mailer == nil || a.cfg.ReportNotifyEmail == "" {
		return
	}

	description := text(lang, "popup_fallback")
	if report.Description != nil {
		description = *report.Description
	}
	msg, err := mailer.NewReportNoticeMessage([]string{a.cfg.ReportNotifyEmail}, mailer.ReportNotice{
		Subject:     text(lang, "mail_subject"),
		ReportID:    report.ID,
		Latitude:    report.Latitude,
		Longitude:   report.Longitude,
		Description: description,
		CreatedAt:   report.CreatedAt,
	})
	if err != nil {
		a.log.Error("build report notice failed", "report_id", report.ID, "error", err)
		a.metrics.NotificationsSent.WithLabelValues("error").Inc()
		return
	}

	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notificationTimeout)
	defer cancel()
	result, err := a.mailer.Send(sendCtx, msg)
	if err != nil {
		a.log.Error("report notice failed", "report_id", report.ID, "provider", a.mailer.ProviderName(), "error", err)
		a.metrics.NotificationsSent.WithLabelValues("error").Inc()
		return
	}
	a.metrics.NotificationsSent.WithLabelValues("sent").Inc()
	a.log.Info("report notice sent", "report_id", report.ID, "message_id", result.ProviderMessageID)
}
