package services

import (
	"strings"
	"sync"
	"time"

	appContext "github.com/alphabatem/common/context"
	"github.com/gofiber/fiber/v2"
	log "github.com/sirupsen/logrus"

	"github.com/datashield-labs/warden_api/dto"
	"github.com/datashield-labs/warden_api/model"
	"github.com/datashield-labs/warden_api/shared"
)

// AttackSignature is a static substring pattern loaded at startup.
type AttackSignature struct {
	Category dto.FindingCategory
	Pattern  string
	Severity string
}

// ThreatDetectionService scans request metadata for known attack
// signatures. Detection is observational: a finding is logged and
// counted, never enforced. Repeated findings from one client escalate to
// a security incident.
type ThreatDetectionService struct {
	appContext.DefaultService

	signatures      []AttackSignature
	agentSignatures []AttackSignature

	escalationMu     sync.Mutex
	findingsByClient map[string][]time.Time
	escalationLimit  int
	escalationWindow time.Duration

	incidentSvc *IncidentService
}

const THREAT_SVC = "threat_svc"

func (svc ThreatDetectionService) Id() string {
	return THREAT_SVC
}

func (svc *ThreatDetectionService) Configure(ctx *appContext.Context) error {
	svc.signatures = defaultSignatures()
	svc.agentSignatures = defaultAgentSignatures()
	svc.findingsByClient = make(map[string][]time.Time)
	svc.escalationLimit = 5
	svc.escalationWindow = 10 * time.Minute
	return svc.DefaultService.Configure(ctx)
}

func (svc *ThreatDetectionService) Start() error {
	svc.incidentSvc = svc.Service(INCIDENT_SVC).(*IncidentService)
	return nil
}

func defaultSignatures() []AttackSignature {
	sigs := []AttackSignature{}

	for _, p := range []string{
		"union select", "drop table", "insert into", "delete from",
		"update set", "exec(", "execute(", "sp_", "xp_",
	} {
		sigs = append(sigs, AttackSignature{Category: dto.FindingSQLInjection, Pattern: p, Severity: string(model.SeverityHigh)})
	}

	for _, p := range []string{
		"<script", "javascript:", "onerror=", "onload=", "eval(",
	} {
		sigs = append(sigs, AttackSignature{Category: dto.FindingXSS, Pattern: p, Severity: string(model.SeverityMedium)})
	}

	for _, p := range []string{
		"../", "..\\", "%2e%2e", "%252e%252e",
	} {
		sigs = append(sigs, AttackSignature{Category: dto.FindingPathTraversal, Pattern: p, Severity: string(model.SeverityHigh)})
	}

	return sigs
}

func defaultAgentSignatures() []AttackSignature {
	sigs := []AttackSignature{}
	for _, p := range []string{
		"sqlmap", "nikto", "nmap", "masscan", "zap", "burp",
	} {
		sigs = append(sigs, AttackSignature{Category: dto.FindingSuspiciousAgent, Pattern: p, Severity: string(model.SeverityMedium)})
	}
	return sigs
}

// Scan tests path+query against each signature category and the
// user-agent against the scanner deny-list. It stops at the first match
// per category to avoid redundant findings, and has no side effects.
func (svc *ThreatDetectionService) Scan(path, query, userAgent string) []dto.SecurityFinding {
	var findings []dto.SecurityFinding

	haystack := strings.ToLower(path) + " " + strings.ToLower(query)
	matched := map[dto.FindingCategory]bool{}

	for _, sig := range svc.signatures {
		if matched[sig.Category] {
			continue
		}
		if strings.Contains(haystack, sig.Pattern) {
			matched[sig.Category] = true
			findings = append(findings, dto.SecurityFinding{
				Category: sig.Category,
				Pattern:  sig.Pattern,
				Severity: sig.Severity,
			})
		}
	}

	agent := strings.ToLower(userAgent)
	for _, sig := range svc.agentSignatures {
		if strings.Contains(agent, sig.Pattern) {
			findings = append(findings, dto.SecurityFinding{
				Category: sig.Category,
				Pattern:  sig.Pattern,
				Severity: sig.Severity,
			})
			break
		}
	}

	return findings
}

// ScanMiddleware logs findings with the requesting client identity and
// escalates repeated ones. It never blocks the request.
func (svc *ThreatDetectionService) ScanMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		// The recover covers the scan only. A panic further down the
		// chain belongs to the downstream handler, not the detector.
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.WithField("panic", r).Error("Attack detector failure, continuing")
				}
			}()

			findings := svc.Scan(c.Path(), string(c.Request().URI().QueryString()), c.Get(fiber.HeaderUserAgent))
			if len(findings) == 0 {
				return
			}

			clientIP, _ := c.Locals(shared.ClientIP).(string)
			for _, f := range findings {
				log.WithFields(log.Fields{
					"client_ip": clientIP,
					"category":  f.Category,
					"pattern":   f.Pattern,
					"severity":  f.Severity,
					"path":      c.Path(),
				}).Warn("Attack signature detected")
				attackFindingsTotal.WithLabelValues(string(f.Category)).Inc()
			}

			svc.trackFindings(clientIP, len(findings))
		}()

		return c.Next()
	}
}

// trackFindings counts findings per client inside the escalation window
// and opens an incident once the threshold is crossed.
func (svc *ThreatDetectionService) trackFindings(clientIP string, count int) {
	if clientIP == "" {
		return
	}

	now := time.Now()
	cutoff := now.Add(-svc.escalationWindow)

	svc.escalationMu.Lock()
	stamps := svc.findingsByClient[clientIP]
	kept := stamps[:0]
	for _, t := range stamps {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	for i := 0; i < count; i++ {
		kept = append(kept, now)
	}
	svc.findingsByClient[clientIP] = kept
	escalate := len(kept) >= svc.escalationLimit
	if escalate {
		// Reset so one flood produces one incident.
		svc.findingsByClient[clientIP] = nil
	}
	svc.escalationMu.Unlock()

	if escalate && svc.incidentSvc != nil {
		go func() {
			_, err := svc.incidentSvc.CreateIncident(&dto.CreateIncidentRequest{
				IncidentType:    string(model.IncidentUnauthorizedAccess),
				Severity:        string(model.SeverityHigh),
				Title:           "Repeated attack signatures from " + clientIP,
				Description:     "Multiple attack signatures detected from one client inside the escalation window.",
				DetectionSource: "attack_detector",
			})
			if err != nil {
				log.WithError(err).Error("Failed to escalate attack findings to incident")
			}
		}()
	}
}
