package acceptance

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"
)

type metricsResponse struct {
	TotalUsers        int     `json:"totalUsers"`
	ActiveRides       int     `json:"activeRides"`
	TotalScooters     int     `json:"totalScooters"`
	AvailableScooters int     `json:"availableScooters"`
	TotalRevenue      float64 `json:"totalRevenue"`
	RidesToday        int     `json:"ridesToday"`
	RevenueToday      float64 `json:"revenueToday"`
}

// Test GET /dashboard/metrics (admin)

func TestDashboardMetrics(t *testing.T) {
	ts := NewTestServer(t)
	defer ts.Close()

	adminID := ts.CreateTestUser(t, "auth0|admin-1", true)
	riderID := ts.CreateTestUser(t, "auth0|rider-1", false)

	sc1 := ts.CreateTestScooter(t, "SCTR-001", "available", true)
	ts.CreateTestScooter(t, "SCTR-002", "available", true)
	sc3 := ts.CreateTestScooter(t, "SCTR-003", "in_use", false)

	activeRide := ts.CreateTestRide(t, riderID, sc3, "active")
	completedRide := ts.CreateTestRide(t, adminID, sc1, "completed")

	yesterday := time.Now().Add(-24 * time.Hour)
	ts.CreateTestPayment(t, completedRide, adminID, 1000, "completed", yesterday)
	ts.CreateTestPayment(t, activeRide, riderID, 625, "completed", time.Now())
	// Pending payments never count towards revenue.
	ts.CreateTestPayment(t, activeRide, riderID, 9999, "pending", time.Now())

	w := ts.GET("/dashboard/metrics", adminHeaders())

	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, w.Code, w.Body.String())
	}

	var resp metricsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}

	if resp.TotalUsers != 2 {
		t.Errorf("totalUsers = %d, want 2", resp.TotalUsers)
	}
	if resp.ActiveRides != 1 {
		t.Errorf("activeRides = %d, want 1", resp.ActiveRides)
	}
	if resp.TotalScooters != 3 {
		t.Errorf("totalScooters = %d, want 3", resp.TotalScooters)
	}
	if resp.AvailableScooters != 2 {
		t.Errorf("availableScooters = %d, want 2", resp.AvailableScooters)
	}
	if resp.RidesToday != 2 {
		t.Errorf("ridesToday = %d, want 2", resp.RidesToday)
	}
	if resp.TotalRevenue != 16.25 {
		t.Errorf("totalRevenue = %v, want 16.25", resp.TotalRevenue)
	}
	if resp.RevenueToday != 6.25 {
		t.Errorf("revenueToday = %v, want 6.25", resp.RevenueToday)
	}
}

func TestDashboardMetrics_RequiresAdmin(t *testing.T) {
	ts := NewTestServer(t)
	defer ts.Close()

	ts.CreateTestUser(t, "auth0|rider-1", false)

	w := ts.GET("/dashboard/metrics", riderHeaders())

	if w.Code != http.StatusForbidden {
		t.Fatalf("expected status %d, got %d: %s", http.StatusForbidden, w.Code, w.Body.String())
	}
}

func TestDashboardMetrics_Returns401WithoutAuth(t *testing.T) {
	ts := NewTestServer(t)
	defer ts.Close()

	w := ts.GET("/dashboard/metrics", nil)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected status %d, got %d", http.StatusUnauthorized, w.Code)
	}
}
