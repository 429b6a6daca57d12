package dialogue

import (
	"math"
	"testing"
)

func TestVehicleNameParser(t *testing.T) {
	p := vehicleNameParser{}
	v, matched := p.parse("Vehicle Name: sebastian")
	if !matched || v != "sebastian" {
		t.Fatalf("got (%v, %v)", v, matched)
	}
	if _, matched := p.parse("not a vehicle name line"); matched {
		t.Fatal("should not match an unrelated line")
	}
}

func TestGliderLABDOSParser(t *testing.T) {
	p := gliderLABDOSParser{}
	if v, matched := p.parse("GliderLAB 7.16 (Mar 22 2012)"); !matched || v != "LAB" {
		t.Fatalf("got (%v, %v)", v, matched)
	}
	if v, matched := p.parse("GliderDOS 8.0"); !matched || v != "DOS" {
		t.Fatalf("got (%v, %v)", v, matched)
	}
}

func TestGPSTimeParserExactEpoch(t *testing.T) {
	p := gpsTimeParser{}
	v, matched := p.parse("Curr Time: Mon Jul  7 16:40:19 2025 MT:  176064")
	if !matched {
		t.Fatal("expected a match")
	}
	if v != int64(1751906419) {
		t.Fatalf("got %v, want 1751906419", v)
	}
}

func TestGPSLatLonParserAndDecimalConversion(t *testing.T) {
	p := gpsLatLonParser{}
	v, matched := p.parse("GPS Location:  5231.957 N   718.577 E measured      1.856 secs ago")
	if !matched {
		t.Fatal("expected a match")
	}
	ll, ok := v.(LatLon)
	if !ok {
		t.Fatalf("got %T, want LatLon", v)
	}
	lat, lon := ll.Decimal()
	if math.Abs(lat-52.532617) > 1e-4 {
		t.Fatalf("lat = %v, want ~52.5326", lat)
	}
	if math.Abs(lon-7.309617) > 1e-4 {
		t.Fatalf("lon = %v, want ~7.3096", lon)
	}
}

func TestMenuParser(t *testing.T) {
	p := menuParser{}
	if _, matched := p.parse("Hit Control-R to RESUME the mission"); !matched {
		t.Fatal("expected a match")
	}
}

func TestDisconnectEventParserMatchesBothForms(t *testing.T) {
	p := disconnectEventParser{}
	if _, matched := p.parse("surface_3: Waiting for final GPS fix."); !matched {
		t.Fatal("expected surface_N line to match")
	}
	if _, matched := p.parse("Megabytes available n CF file system"); !matched {
		t.Fatal("expected low-memory line to match")
	}
}
