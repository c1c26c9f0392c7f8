package services

import (
	"bytes"
	"net/http"
	"os"
	"time"

	appContext "github.com/alphabatem/common/context"
	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"

	"github.com/datashield-labs/warden_api/model"
)

// NotificationService delivers operational alerts. Delivery is
// fire-and-forget, best effort: a failed notification is logged and
// dropped, never propagated to the triggering operation.
type NotificationService struct {
	appContext.DefaultService

	httpClient *http.Client

	alertWebhookURL string // standard business notifications
	pagerWebhookURL string // paging-style alerts for high/critical
	environment     string
}

const NOTIFICATION_SVC = "notification_svc"

func (svc NotificationService) Id() string {
	return NOTIFICATION_SVC
}

func (svc *NotificationService) Configure(ctx *appContext.Context) error {
	svc.httpClient = &http.Client{
		Timeout: 10 * time.Second,
	}
	svc.alertWebhookURL = os.Getenv("ALERT_WEBHOOK_URL")
	svc.pagerWebhookURL = os.Getenv("PAGER_WEBHOOK_URL")
	svc.environment = os.Getenv("ENVIRONMENT")
	return svc.DefaultService.Configure(ctx)
}

func (svc *NotificationService) Start() error {
	if svc.alertWebhookURL == "" {
		log.Warn("ALERT_WEBHOOK_URL not configured, notifications will be log-only")
	}
	return nil
}

type alertPayload struct {
	Title       string                 `json:"title"`
	Message     string                 `json:"message"`
	Severity    string                 `json:"severity"`
	Timestamp   string                 `json:"timestamp"`
	Environment string                 `json:"environment"`
	Service     string                 `json:"service"`
	Details     map[string]interface{} `json:"details,omitempty"`
}

// Notify routes by severity: critical and high page, everything else is a
// standard business notification.
func (svc *NotificationService) Notify(severity model.IncidentSeverity, title, message string, details map[string]interface{}) {
	payload := alertPayload{
		Title:       title,
		Message:     message,
		Severity:    string(severity),
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
		Environment: svc.environment,
		Service:     "warden_api",
		Details:     details,
	}

	urls := []string{svc.alertWebhookURL}
	if severity == model.SeverityCritical || severity == model.SeverityHigh {
		urls = append(urls, svc.pagerWebhookURL)
	}

	for _, url := range urls {
		if url == "" {
			continue
		}
		go svc.deliver(url, payload)
	}

	log.WithFields(log.Fields{
		"severity": severity,
		"title":    title,
	}).Info("Alert dispatched")
}

func (svc *NotificationService) deliver(url string, payload alertPayload) {
	body, err := sonic.Marshal(payload)
	if err != nil {
		log.WithError(err).Error("Failed to marshal alert payload")
		return
	}

	resp, err := svc.httpClient.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		log.WithError(err).WithField("title", payload.Title).Error("Failed to deliver alert")
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		log.WithFields(log.Fields{
			"status": resp.StatusCode,
			"title":  payload.Title,
		}).Error("Alert webhook rejected payload")
	}
}
