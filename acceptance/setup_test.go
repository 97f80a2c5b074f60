package acceptance

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/voltride/fleetengine-backend/api"
	"github.com/voltride/fleetengine-backend/coordinator"
	"github.com/voltride/fleetengine-backend/dashboard"
	"github.com/voltride/fleetengine-backend/device"
	"github.com/voltride/fleetengine-backend/internal/o11y"
	"github.com/voltride/fleetengine-backend/payment"
	"github.com/voltride/fleetengine-backend/pricing"
	"github.com/voltride/fleetengine-backend/ride"
	"github.com/voltride/fleetengine-backend/scooter"
	"github.com/voltride/fleetengine-backend/user"
)

type TestServer struct {
	DB      *sqlx.DB
	Router  *gin.Engine
	Channel *scriptedChannel
	Biller  *recordingBiller
}

func NewTestServer(t *testing.T) *TestServer {
	t.Helper()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("DATABASE_URL not set; skipping acceptance tests")
	}

	gin.SetMode(gin.TestMode)

	db, err := sqlx.Connect("pgx", dbURL)
	if err != nil {
		t.Fatalf("failed to connect to database: %v", err)
	}

	// Clean up test data before each test
	cleanupTestData(t, db)

	sr := scooter.NewRepository(db)
	rr := ride.NewRepository(db)
	pr := pricing.NewRepository(db)
	ur := user.NewRepository(db)
	payments := payment.NewRepository(db)

	obs := &o11y.Observability{
		Logger:   slog.New(slog.DiscardHandler),
		Registry: prometheus.NewRegistry(),
	}

	channel := newScriptedChannel()
	gateway := device.NewGateway(channel, sr, obs.Logger)
	gateway.AttemptTimeout = 100 * time.Millisecond
	gateway.Backoff = time.Millisecond

	coord := coordinator.New(sr, rr, pr, ur, gateway, obs.Logger)
	dash := dashboard.NewAggregator(db, payments)
	biller := newRecordingBiller()

	a, err := api.New(coord, sr, rr, pr, ur, gateway, dash, biller, obs, api.Config{
		Auth:     fakeAuthMiddleware(),
		Identity: fakeIdentity,
	})
	if err != nil {
		t.Fatalf("failed to build API: %v", err)
	}

	return &TestServer{
		DB:      db,
		Router:  a.Router(),
		Channel: channel,
		Biller:  biller,
	}
}

func (ts *TestServer) Close() {
	ts.DB.Close()
}

func cleanupTestData(t *testing.T, db *sqlx.DB) {
	t.Helper()

	// Delete in order of dependencies
	for _, table := range []string{"payments", "rides", "pricing", "scooters", "users"} {
		if _, err := db.Exec("DELETE FROM " + table); err != nil {
			t.Logf("warning: failed to clean %s: %v", table, err)
		}
	}
}

// fakeAuthMiddleware extracts the caller identity from the X-Auth0-ID header
// so tests do not need real JWTs.
func fakeAuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		auth0ID := c.GetHeader("X-Auth0-ID")
		if auth0ID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": "UNAUTHORIZED", "message": "Authentication required"})
			return
		}
		c.Set("test_auth0_id", auth0ID)
		c.Next()
	}
}

func fakeIdentity(c *gin.Context) (string, bool) {
	auth0ID := c.GetString("test_auth0_id")
	return auth0ID, auth0ID != ""
}

// scriptedChannel stands in for the AMQP hardware channel. Commands succeed
// unless a test scripts a failure, and every issued command is recorded.
type scriptedChannel struct {
	mu       sync.Mutex
	failures map[device.Command]error
	issued   []issuedCommand
}

type issuedCommand struct {
	Serial  string
	Command device.Command
}

func newScriptedChannel() *scriptedChannel {
	return &scriptedChannel{failures: make(map[device.Command]error)}
}

func (s *scriptedChannel) Issue(_ context.Context, serial string, cmd device.Command) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.issued = append(s.issued, issuedCommand{Serial: serial, Command: cmd})
	return s.failures[cmd]
}

func (s *scriptedChannel) Fail(cmd device.Command, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[cmd] = err
}

func (s *scriptedChannel) IssuedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.issued)
}

// recordingBiller captures invoice calls so tests can assert on what a
// completed ride gets billed.
type recordingBiller struct {
	calls chan billerCall
}

type billerCall struct {
	StripeCustomerID string
	Total            pricing.Cents
	DurationMinutes  int
}

func newRecordingBiller() *recordingBiller {
	return &recordingBiller{calls: make(chan billerCall, 8)}
}

func (b *recordingBiller) InvoiceRide(_ context.Context, stripeCustomerID string, total pricing.Cents, durationMinutes int) error {
	b.calls <- billerCall{StripeCustomerID: stripeCustomerID, Total: total, DurationMinutes: durationMinutes}
	return nil
}

// WaitForInvoice blocks until the async invoicing path fires.
func (b *recordingBiller) WaitForInvoice(t *testing.T) billerCall {
	t.Helper()
	select {
	case call := <-b.calls:
		return call
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for invoice")
		return billerCall{}
	}
}

// Helper methods for making requests
func (ts *TestServer) GET(path string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	ts.Router.ServeHTTP(w, req)
	return w
}

func (ts *TestServer) POST(path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	ts.Router.ServeHTTP(w, req)
	return w
}

// Helper to create test user
func (ts *TestServer) CreateTestUser(t *testing.T, auth0ID string, isAdmin bool) string {
	t.Helper()
	var id string
	err := ts.DB.Get(&id, `
		INSERT INTO users (id, auth0_id, email, full_name, is_admin)
		VALUES (gen_random_uuid(), $1, $1 || '@example.com', 'Test User', $2)
		RETURNING id
	`, auth0ID, isAdmin)
	if err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}
	return id
}

// SetStripeID attaches a Stripe customer to a user directly in DB.
func (ts *TestServer) SetStripeID(t *testing.T, userID, stripeID string) {
	t.Helper()
	if _, err := ts.DB.Exec(`UPDATE users SET stripe_id = $2 WHERE id = $1`, userID, stripeID); err != nil {
		t.Fatalf("failed to set stripe id: %v", err)
	}
}

// Helper to create test scooter
func (ts *TestServer) CreateTestScooter(t *testing.T, serial, status string, locked bool) string {
	t.Helper()
	var id string
	err := ts.DB.Get(&id, `
		INSERT INTO scooters (id, serial_number, status, battery_level, latitude, longitude, is_locked)
		VALUES (gen_random_uuid(), $1, $2::scooter_status, 90, 40.7128000, -74.0060000, $3)
		RETURNING id
	`, serial, status, locked)
	if err != nil {
		t.Fatalf("failed to create test scooter: %v", err)
	}
	return id
}

// Helper to create a pricing rule with an explicit creation time
func (ts *TestServer) CreateTestPricing(t *testing.T, baseCents, perMinuteCents int64, createdAt time.Time) string {
	t.Helper()
	var id string
	err := ts.DB.Get(&id, `
		INSERT INTO pricing (id, base_price_cents, price_per_minute_cents, is_active, created_at)
		VALUES (gen_random_uuid(), $1, $2, true, $3)
		RETURNING id
	`, baseCents, perMinuteCents, createdAt)
	if err != nil {
		t.Fatalf("failed to create test pricing: %v", err)
	}
	return id
}

// Helper to create a ride directly in DB
func (ts *TestServer) CreateTestRide(t *testing.T, userID, scooterID, status string) string {
	t.Helper()
	var id string
	err := ts.DB.Get(&id, `
		INSERT INTO rides (id, user_id, scooter_id, status, start_latitude, start_longitude)
		VALUES (gen_random_uuid(), $1, $2, $3::ride_status, 40.7128000, -74.0060000)
		RETURNING id
	`, userID, scooterID, status)
	if err != nil {
		t.Fatalf("failed to create test ride: %v", err)
	}
	return id
}

// Helper to create a payment with an explicit creation time
func (ts *TestServer) CreateTestPayment(t *testing.T, rideID, userID string, amountCents int64, status string, createdAt time.Time) {
	t.Helper()
	_, err := ts.DB.Exec(`
		INSERT INTO payments (id, ride_id, user_id, amount_cents, status, created_at)
		VALUES (gen_random_uuid(), $1, $2, $3, $4::payment_status, $5)
	`, rideID, userID, amountCents, status, createdAt)
	if err != nil {
		t.Fatalf("failed to create test payment: %v", err)
	}
}

// ScooterState reads a scooter's status and lock flag from the database.
func (ts *TestServer) ScooterState(t *testing.T, scooterID string) (string, bool) {
	t.Helper()
	var row struct {
		Status   string `db:"status"`
		IsLocked bool   `db:"is_locked"`
	}
	if err := ts.DB.Get(&row, `SELECT status, is_locked FROM scooters WHERE id = $1`, scooterID); err != nil {
		t.Fatalf("failed to read scooter state: %v", err)
	}
	return row.Status, row.IsLocked
}

// RideStatus reads a ride's status from the database.
func (ts *TestServer) RideStatus(t *testing.T, rideID string) string {
	t.Helper()
	var status string
	if err := ts.DB.Get(&status, `SELECT status FROM rides WHERE id = $1`, rideID); err != nil {
		t.Fatalf("failed to read ride status: %v", err)
	}
	return status
}

func (ts *TestServer) CountRides(t *testing.T) int {
	t.Helper()
	var n int
	if err := ts.DB.Get(&n, `SELECT count(*) FROM rides`); err != nil {
		t.Fatalf("failed to count rides: %v", err)
	}
	return n
}
