package services

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datashield-labs/warden_api/dto"
)

func newTestDetector() *ThreatDetectionService {
	return &ThreatDetectionService{
		signatures:       defaultSignatures(),
		agentSignatures:  defaultAgentSignatures(),
		findingsByClient: make(map[string][]time.Time),
		escalationLimit:  5,
		escalationWindow: 10 * time.Minute,
	}
}

func TestScanCleanRequest(t *testing.T) {
	svc := newTestDetector()

	findings := svc.Scan("/api/v1/users/abc", "page=1&limit=20", "Mozilla/5.0")
	assert.Empty(t, findings)
}

func TestScanSQLInjection(t *testing.T) {
	svc := newTestDetector()

	findings := svc.Scan("/api/v1/users", "q=1 UNION SELECT password FROM users", "Mozilla/5.0")
	require.Len(t, findings, 1)
	assert.Equal(t, dto.FindingSQLInjection, findings[0].Category)
	assert.Equal(t, "union select", findings[0].Pattern)
	assert.Equal(t, "high", findings[0].Severity)
}

func TestScanXSS(t *testing.T) {
	svc := newTestDetector()

	findings := svc.Scan("/api/v1/search", "q=<SCRIPT>alert(1)</script>", "Mozilla/5.0")
	require.Len(t, findings, 1)
	assert.Equal(t, dto.FindingXSS, findings[0].Category)
	assert.Equal(t, "medium", findings[0].Severity)
}

func TestScanPathTraversal(t *testing.T) {
	svc := newTestDetector()

	findings := svc.Scan("/api/v1/files/../../etc/passwd", "", "Mozilla/5.0")
	require.Len(t, findings, 1)
	assert.Equal(t, dto.FindingPathTraversal, findings[0].Category)
}

func TestScanEncodedTraversal(t *testing.T) {
	svc := newTestDetector()

	findings := svc.Scan("/api/v1/files", "path=%2e%2e%2fetc", "Mozilla/5.0")
	require.Len(t, findings, 1)
	assert.Equal(t, dto.FindingPathTraversal, findings[0].Category)
}

func TestScanSuspiciousUserAgent(t *testing.T) {
	svc := newTestDetector()

	findings := svc.Scan("/api/v1/users", "", "sqlmap/1.7#stable")
	require.Len(t, findings, 1)
	assert.Equal(t, dto.FindingSuspiciousAgent, findings[0].Category)
}

func TestScanFirstMatchPerCategory(t *testing.T) {
	svc := newTestDetector()

	// Two SQL patterns in one request produce a single SQL finding.
	findings := svc.Scan("/api/v1/users", "q=union select 1; drop table users", "Mozilla/5.0")
	require.Len(t, findings, 1)
	assert.Equal(t, dto.FindingSQLInjection, findings[0].Category)
}

func TestScanMultipleCategories(t *testing.T) {
	svc := newTestDetector()

	findings := svc.Scan("/api/v1/../admin", "q=union select <script>", "nikto/2.5")
	require.Len(t, findings, 4)

	categories := map[dto.FindingCategory]bool{}
	for _, f := range findings {
		categories[f.Category] = true
	}
	assert.True(t, categories[dto.FindingSQLInjection])
	assert.True(t, categories[dto.FindingXSS])
	assert.True(t, categories[dto.FindingPathTraversal])
	assert.True(t, categories[dto.FindingSuspiciousAgent])
}

func TestScanCaseInsensitive(t *testing.T) {
	svc := newTestDetector()

	findings := svc.Scan("/api/v1/users", "q=UNION SELECT", "Mozilla/5.0")
	require.Len(t, findings, 1)

	findings = svc.Scan("/api/v1/users", "", "SQLMap/1.7")
	require.Len(t, findings, 1)
}

func TestScanHasNoSideEffects(t *testing.T) {
	svc := newTestDetector()

	for i := 0; i < 3; i++ {
		findings := svc.Scan("/api/v1/users", "q=union select", "Mozilla/5.0")
		require.Len(t, findings, 1)
	}
	assert.Empty(t, svc.findingsByClient)
}

func TestScanMiddlewarePanicInHandlerPropagates(t *testing.T) {
	svc := newTestDetector()

	app := fiber.New()
	app.Use(recover.New())
	app.Use(svc.ScanMiddleware())
	app.Get("/boom", func(c *fiber.Ctx) error {
		panic("handler blew up")
	})

	// The detector never blocks; a downstream panic must reach the
	// outer recovery layer, not be swallowed as a scanner failure.
	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/boom", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
}

func TestScanMiddlewarePassesCleanRequest(t *testing.T) {
	svc := newTestDetector()

	app := fiber.New()
	app.Use(svc.ScanMiddleware())
	app.Get("/api/v1/users", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/api/v1/users?page=1", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}
