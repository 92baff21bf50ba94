package config

import (
	"bytes"
	"strings"
	"testing"
)

func TestCreateClusterWritesConfig(t *testing.T) {
	chdirTemp(t)
	manifest := strings.NewReader(`{"cluster_bus_addr":"node-1:7777","rings":["bootstrap","local"],"refresh_interval_seconds":15}`)
	var out bytes.Buffer

	c, err := CreateCluster(manifest, &out)
	if err != nil {
		t.Fatalf("create cluster: %v", err)
	}
	if c.ClusterBusAddr != "node-1:7777" || len(c.Rings) != 2 {
		t.Fatalf("unexpected config: %+v", c)
	}
	if out.Len() == 0 {
		t.Fatal("expected confirmation output")
	}

	reloaded, err := Load()
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.ClusterBusAddr != c.ClusterBusAddr {
		t.Fatalf("persisted config mismatch: %+v", reloaded)
	}
}

func TestCreateClusterRejectsInvalidManifest(t *testing.T) {
	chdirTemp(t)
	manifest := strings.NewReader(`{"cluster_bus_addr":"node-1:7777","rings":[]}`)
	var out bytes.Buffer
	if _, err := CreateCluster(manifest, &out); err == nil {
		t.Fatal("expected validation error for empty rings")
	}
}
