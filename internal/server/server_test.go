// If you are AI: This file contains in-process end-to-end tests of the whole
// relay: startup, health, stream fan-out, discovery round trip, control
// bridge occupancy, and the HTTP inspection surface.

package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"pnrelay/internal/config"
	"pnrelay/internal/core/wire"
)

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("find free port: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()
	return port
}

func startServer(t *testing.T) (*Server, *config.Config) {
	t.Helper()

	cfg := config.Default()
	cfg.Server.DetectorPort = freePort(t)
	cfg.Server.DisplayPort = freePort(t)
	cfg.Server.ControlPort = freePort(t)
	cfg.Server.DiscoveryPort = freePort(t)
	cfg.Server.HTTPPort = freePort(t)
	if err := cfg.Validate(); err != nil {
		t.Fatalf("config: %v", err)
	}

	srv := New(cfg)
	if err := srv.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	})
	return srv, cfg
}

func hostport(port int) string {
	return fmt.Sprintf("127.0.0.1:%d", port)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestHealthAndMetricsEndpoints(t *testing.T) {
	srv, cfg := startServer(t)
	_ = srv
	base := "http://" + hostport(cfg.Server.HTTPPort)

	resp, err := http.Get(base + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	var report struct {
		Status           string `json:"status"`
		DetectorProducer bool   `json:"detector_producer"`
	}
	err = json.NewDecoder(resp.Body).Decode(&report)
	resp.Body.Close()
	if err != nil {
		t.Fatalf("healthz decode: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz status = %d", resp.StatusCode)
	}
	if report.Status != "ok" {
		t.Fatalf("healthz report = %+v", report)
	}
	if report.DetectorProducer {
		t.Error("detector_producer must be false with no producer")
	}

	resp, err = http.Get(base + "/metrics")
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("metrics status = %d", resp.StatusCode)
	}
	if !bytes.Contains(body, []byte("pnrelay_stream_consumers")) {
		t.Error("metrics output missing pnrelay_stream_consumers")
	}
}

func TestStreamFanOutThroughServer(t *testing.T) {
	srv, cfg := startServer(t)
	addr := hostport(cfg.Server.DetectorPort)

	consumer, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("consumer dial: %v", err)
	}
	defer consumer.Close()
	waitFor(t, "consumer attached", func() bool { return srv.Detector().Status().Stats.Consumers == 1 })

	producer, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("producer dial: %v", err)
	}
	defer producer.Close()

	frame := wire.DataFrame{Sequence: 1, NumSamples: 16}
	h := frame.Encode()
	payload := append(h[:], bytes.Repeat([]byte{0xAB}, frame.PayloadSize())...)
	if _, err := producer.Write(payload); err != nil {
		t.Fatalf("producer write: %v", err)
	}

	consumer.SetReadDeadline(time.Now().Add(5 * time.Second))
	got := make([]byte, wire.HeaderSize+len(payload))
	if _, err := io.ReadFull(consumer, got); err != nil {
		t.Fatalf("consumer read: %v", err)
	}

	sh, err := wire.ParseStreamHeader(got[:wire.HeaderSize])
	if err != nil {
		t.Fatalf("bad stream header: %v", err)
	}
	if sh.SampleRate != 50000 {
		t.Errorf("sample rate = %d, want 50000", sh.SampleRate)
	}
	if !bytes.Equal(got[wire.HeaderSize:], payload) {
		t.Error("relayed bytes diverge from producer bytes")
	}
}

func TestDiscoveryRoundTripThroughServer(t *testing.T) {
	srv, cfg := startServer(t)
	_ = srv

	edge, err := net.Dial("tcp", hostport(cfg.Server.DiscoveryPort))
	if err != nil {
		t.Fatalf("edge dial: %v", err)
	}
	defer edge.Close()

	fmt.Fprintf(edge, "{\"cmd\":\"helo\",\"id\":\"A\",\"svc\":\"sdr_server\",\"port\":4535,\"data\":4536,\"caps\":\"rx\"}\n")
	fmt.Fprintf(edge, "{\"cmd\":\"list\"}\n")

	edge.SetReadDeadline(time.Now().Add(5 * time.Second))
	line, err := bufio.NewReader(edge).ReadBytes('\n')
	if err != nil {
		t.Fatalf("reading response: %v", err)
	}

	var resp struct {
		M        string `json:"m"`
		Services []struct {
			ID string `json:"id"`
			IP string `json:"ip"`
		} `json:"services"`
	}
	if err := json.Unmarshal(line, &resp); err != nil {
		t.Fatalf("bad response: %v", err)
	}
	if resp.M != "PNSD" || len(resp.Services) != 1 || resp.Services[0].ID != "A" {
		t.Fatalf("bad response: %s", line)
	}

	wantHost, _, _ := net.SplitHostPort(edge.LocalAddr().String())
	if resp.Services[0].IP != wantHost {
		t.Errorf("ip = %q, want observed %q", resp.Services[0].IP, wantHost)
	}

	// The API sees the same table.
	apiResp, err := http.Get("http://" + hostport(cfg.Server.HTTPPort) + "/api/registry")
	if err != nil {
		t.Fatalf("api: %v", err)
	}
	defer apiResp.Body.Close()
	var reg struct {
		Edges    int `json:"edges"`
		Services []struct {
			ID string `json:"id"`
		} `json:"services"`
	}
	if err := json.NewDecoder(apiResp.Body).Decode(&reg); err != nil {
		t.Fatalf("api decode: %v", err)
	}
	if reg.Edges != 1 || len(reg.Services) != 1 || reg.Services[0].ID != "A" {
		t.Fatalf("api registry view: %+v", reg)
	}
}

func TestControlBridgeThroughServer(t *testing.T) {
	srv, cfg := startServer(t)
	addr := hostport(cfg.Server.ControlPort)

	producer, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("producer dial: %v", err)
	}
	defer producer.Close()
	waitFor(t, "bridge producer", func() bool { return srv.Bridge().Status().ProducerUp })

	controller, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("controller dial: %v", err)
	}
	defer controller.Close()
	waitFor(t, "bridge controller", func() bool { return srv.Bridge().Status().ControllerUp })

	third, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("third dial: %v", err)
	}
	defer third.Close()
	third.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, err := third.Read(make([]byte, 1)); err != io.EOF {
		t.Fatalf("third connection read err = %v, want EOF", err)
	}

	if _, err := controller.Write([]byte("STATUS\n")); err != nil {
		t.Fatalf("controller write: %v", err)
	}
	producer.SetReadDeadline(time.Now().Add(5 * time.Second))
	got := make([]byte, 7)
	if _, err := io.ReadFull(producer, got); err != nil {
		t.Fatalf("producer read: %v", err)
	}
	if string(got) != "STATUS\n" {
		t.Fatalf("producer got %q", got)
	}

	if _, err := producer.Write([]byte("OK\n")); err != nil {
		t.Fatalf("producer write: %v", err)
	}
	controller.SetReadDeadline(time.Now().Add(5 * time.Second))
	got = make([]byte, 3)
	if _, err := io.ReadFull(controller, got); err != nil {
		t.Fatalf("controller read: %v", err)
	}
	if string(got) != "OK\n" {
		t.Fatalf("controller got %q", got)
	}
}

func TestStartFailsOnOccupiedPort(t *testing.T) {
	cfg := config.Default()
	cfg.Server.DetectorPort = freePort(t)
	cfg.Server.DisplayPort = freePort(t)
	cfg.Server.ControlPort = freePort(t)
	cfg.Server.DiscoveryPort = freePort(t)
	cfg.Server.HTTPPort = freePort(t)

	// Occupy the detector port.
	blocker, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.DetectorPort))
	if err != nil {
		t.Fatalf("blocker listen: %v", err)
	}
	defer blocker.Close()

	if err := New(cfg).Start(); err == nil {
		t.Fatal("Start must fail when a port is taken")
	}
}
