package geo

import (
	"testing"
	"time"

	"github.com/example/care-coordination/internal/models"
)

func TestHaversineKmOneDegreeLatitude(t *testing.T) {
	d := HaversineKm(models.Coord{Lat: 0, Lng: 0}, models.Coord{Lat: 1, Lng: 0})
	if d < 110 || d > 112 {
		t.Fatalf("expected ~111km for one degree of latitude, got %v", d)
	}
}

func TestHaversineKmZeroDistance(t *testing.T) {
	c := models.Coord{Lat: 51.5, Lng: -0.1}
	if d := HaversineKm(c, c); d != 0 {
		t.Fatalf("expected zero distance, got %v", d)
	}
}

func TestCacheExpiry(t *testing.T) {
	c := NewCache(10 * time.Millisecond)
	a := models.Coord{Lat: 1, Lng: 2}
	b := models.Coord{Lat: 3, Lng: 4}

	c.Set(a, b, 42)
	if v, ok := c.Get(a, b); !ok || v != 42 {
		t.Fatalf("expected cached value, got %v %v", v, ok)
	}
	time.Sleep(20 * time.Millisecond)
	if _, ok := c.Get(a, b); ok {
		t.Fatal("expected entry to expire")
	}
}
