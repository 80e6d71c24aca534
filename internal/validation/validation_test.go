package validation

import "testing"

func TestSubmitCatRequest_Valid(t *testing.T) {
	v := New()

	req := SubmitCatRequest{
		Lat:         52.52,
		Lon:         13.405,
		Name:        "Schnurri",
		Description: "grey tabby, very vocal",
	}

	if err := v.Struct(req); err != nil {
		t.Fatalf("expected valid, got error: %v", err)
	}
}

func TestSubmitCatRequest_OutOfRangeCoordinates(t *testing.T) {
	v := New()

	req := SubmitCatRequest{Lat: 91, Lon: 0, Name: "Schnurri"}
	if err := v.Struct(req); err == nil {
		t.Fatal("expected validation error for latitude out of range, got nil")
	}

	req = SubmitCatRequest{Lat: 0, Lon: -181, Name: "Schnurri"}
	if err := v.Struct(req); err == nil {
		t.Fatal("expected validation error for longitude out of range, got nil")
	}
}

func TestModerateCatRequest_DecisionValues(t *testing.T) {
	v := New()

	for _, d := range []string{"approve", "reject"} {
		if err := v.Struct(ModerateCatRequest{Decision: d}); err != nil {
			t.Fatalf("expected %q to be valid, got error: %v", d, err)
		}
	}

	if err := v.Struct(ModerateCatRequest{Decision: "promote"}); err == nil {
		t.Fatal("expected validation error for unknown decision, got nil")
	}
}

func TestIssueTokenRequest_ActionValues(t *testing.T) {
	v := New()

	if err := v.Struct(IssueTokenRequest{CatID: "cat-1", Action: "treat"}); err != nil {
		t.Fatalf("expected valid, got error: %v", err)
	}
	if err := v.Struct(IssueTokenRequest{CatID: "cat-1", Action: "pet"}); err == nil {
		t.Fatal("expected validation error for unknown action, got nil")
	}
	if err := v.Struct(IssueTokenRequest{Action: "treat"}); err == nil {
		t.Fatal("expected validation error for missing cat_id, got nil")
	}
}

func TestViewportQuery_InvertedBox(t *testing.T) {
	v := New()

	ok := ViewportQuery{MinLat: 52.0, MinLon: 13.0, MaxLat: 53.0, MaxLon: 14.0}
	if err := v.Struct(ok); err != nil {
		t.Fatalf("expected valid, got error: %v", err)
	}

	inverted := ViewportQuery{MinLat: 53.0, MinLon: 13.0, MaxLat: 52.0, MaxLon: 14.0}
	if err := v.Struct(inverted); err == nil {
		t.Fatal("expected validation error for inverted latitude bounds, got nil")
	}
}
