package main

import "testing"

func TestWorkerDeviceIndexUnset(t *testing.T) {
	t.Setenv(deviceIndexEnv, "")
	if got := workerDeviceIndex(); got != -1 {
		t.Errorf("got %d, want -1", got)
	}
}

func TestWorkerDeviceIndexSet(t *testing.T) {
	t.Setenv(deviceIndexEnv, "2")
	if got := workerDeviceIndex(); got != 2 {
		t.Errorf("got %d, want 2", got)
	}
}

func TestWorkerDeviceIndexMalformedFallsBack(t *testing.T) {
	t.Setenv(deviceIndexEnv, "not-a-number")
	if got := workerDeviceIndex(); got != -1 {
		t.Errorf("got %d, want -1", got)
	}
}
