package service

import (
	"testing"

	"go.uber.org/zap"
)

func openTestServices(t *testing.T) (*Stores, *DensityService, *PointService) {
	t.Helper()

	dir := t.TempDir()
	stores, err := OpenStores(dir+"/points.db", dir+"/density", 4, zap.NewNop())
	if err != nil {
		t.Fatalf("failed to open stores: %v", err)
	}
	t.Cleanup(func() { stores.Close() })

	density, err := NewDensityService(stores.Density, zap.NewNop())
	if err != nil {
		t.Fatalf("failed to create density service: %v", err)
	}
	return stores, density, NewPointService(stores.Points, density, zap.NewNop())
}

func i64(v int64) *int64 { return &v }

func f64(v float64) *float64 { return &v }
