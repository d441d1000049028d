package socket

import (
	"path/filepath"
	"testing"
	"time"
)

func TestEndpointParsing(t *testing.T) {
	network, addr, err := Endpoint("unix:/tmp/depthfusion.sock")
	if err != nil {
		t.Fatalf("Endpoint: %v", err)
	}
	if network != "unix" || addr != "/tmp/depthfusion.sock" {
		t.Errorf("got (%q, %q), want (unix, /tmp/depthfusion.sock)", network, addr)
	}
}

func TestEndpointRejectsUnsupportedScheme(t *testing.T) {
	if _, _, err := Endpoint("tcp://127.0.0.1:9999"); err == nil {
		t.Fatal("expected an error for a non-unix endpoint scheme")
	}
}

func TestEncodeFrameLengthAndMagic(t *testing.T) {
	heights := []float32{1, 2, 3, 4}
	buf := encodeFrame(5, 1000, 2, 2, heights, 0xDEADBEEF, 1)
	if len(buf) != headerBytes+len(heights)*4 {
		t.Fatalf("encoded length = %d, want %d", len(buf), headerBytes+len(heights)*4)
	}
	if string(buf[0:4]) != wireMagic {
		t.Errorf("magic = %q, want %q", buf[0:4], wireMagic)
	}
}

func TestPublishAndClientLatest(t *testing.T) {
	sock := filepath.Join(t.TempDir(), "test.sock")
	endpoint := "unix:" + sock

	pub, err := NewPublisher(endpoint, 0, nil)
	if err != nil {
		t.Fatalf("NewPublisher: %v", err)
	}
	defer pub.Close()

	client, err := Dial(endpoint, time.Second)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer client.Close()

	// Give the accept loop a moment to register the connection.
	time.Sleep(20 * time.Millisecond)

	heights := []float32{10, 20, 30, 40}
	pub.Publish(1, 1000, 2, 2, heights)

	client.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	f, err := client.Latest()
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if f.FrameID != 1 {
		t.Errorf("FrameID = %d, want 1", f.FrameID)
	}
	for i, v := range heights {
		if f.Heights[i] != v {
			t.Errorf("Heights[%d] = %v, want %v", i, f.Heights[i], v)
		}
	}
	if !client.VerifyChecksum(f) {
		t.Error("VerifyChecksum = false, want true")
	}
}

func TestDialTimesOutWithNoListener(t *testing.T) {
	sock := filepath.Join(t.TempDir(), "nobody-listening.sock")
	_, err := Dial("unix:"+sock, 150*time.Millisecond)
	if err == nil {
		t.Fatal("expected an error dialing an endpoint with no listener")
	}
}
