package validators

import (
	"strings"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestValidateCreateRide(t *testing.T) {
	t.Parallel()

	start := time.Now().Add(24 * time.Hour)
	end := start.Add(3 * time.Hour)
	before := start.Add(-time.Hour)

	tests := []struct {
		name    string
		req     CreateRideRequest
		wantErr bool
	}{
		{"valid", CreateRideRequest{SeatsOffered: 3, StartCity: "Lyon", EndCity: "Paris", StartAt: start, EndAt: &end}, false},
		{"no seats", CreateRideRequest{SeatsOffered: 0, StartCity: "Lyon", EndCity: "Paris", StartAt: start}, true},
		{"same city", CreateRideRequest{SeatsOffered: 2, StartCity: "Lyon", EndCity: "Lyon", StartAt: start}, true},
		{"past start", CreateRideRequest{SeatsOffered: 2, StartCity: "Lyon", EndCity: "Paris", StartAt: time.Now().Add(-time.Hour)}, true},
		{"end before start", CreateRideRequest{SeatsOffered: 2, StartCity: "Lyon", EndCity: "Paris", StartAt: start, EndAt: &before}, true},
		{"bad city", CreateRideRequest{SeatsOffered: 2, StartCity: "Ly0n", EndCity: "Paris", StartAt: start}, true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			errs := ValidateCreateRide(&tt.req)
			if (len(errs) > 0) != tt.wantErr {
				t.Errorf("expected error=%v, got %v", tt.wantErr, errs)
			}
		})
	}
}

func TestValidateReservationTransition(t *testing.T) {
	t.Parallel()

	ok := ReservationTransitionRequest{ReservationID: primitive.NewObjectID().Hex(), Action: "accept"}
	if errs := ValidateReservationTransition(&ok); len(errs) != 0 {
		t.Errorf("expected no errors, got %v", errs)
	}

	bad := ReservationTransitionRequest{ReservationID: "not-an-id", Action: "accept"}
	errs := ValidateReservationTransition(&bad)
	if len(errs) != 1 || errs[0].Tag != "object_id" {
		t.Errorf("expected object_id error, got %v", errs)
	}
	if _, ok := errs.Details()["ReservationID"]; !ok {
		t.Errorf("expected ReservationID in details, got %v", errs.Details())
	}
}

func TestValidateReport(t *testing.T) {
	t.Parallel()

	req := ReportRequest{Reason: "  spam \x00"}
	if errs := ValidateReport(&req); len(errs) != 0 {
		t.Errorf("expected no errors, got %v", errs)
	}
	if req.Reason != "spam" {
		t.Errorf("expected sanitized reason, got %q", req.Reason)
	}

	long := ReportRequest{Reason: strings.Repeat("x", 2001)}
	if errs := ValidateReport(&long); len(errs) == 0 {
		t.Error("expected max length error")
	}
}

func TestValidMessageContent(t *testing.T) {
	t.Parallel()

	if ValidMessageContent("", 1000) {
		t.Error("empty content must be rejected")
	}
	if !ValidMessageContent(strings.Repeat("é", 1000), 1000) {
		t.Error("1000 runes must be accepted")
	}
	if ValidMessageContent(strings.Repeat("a", 1001), 1000) {
		t.Error("1001 characters must be rejected")
	}
}
