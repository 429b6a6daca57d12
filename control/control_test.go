package control

import (
	"bufio"
	"encoding/json"
	"net"
	"testing"
	"time"
)

type fakeDevice struct {
	lastAction string
	reply      string
}

func (d *fakeDevice) Callback(action string) string {
	d.lastAction = action
	return d.reply
}

func TestEndpointDispatchesToRegisteredDevice(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	e := New(nil)
	dev := &fakeDevice{reply: "Device connected."}
	e.Register("/dev/ttyUSB0", dev)
	go e.Serve(ln)

	conn, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	req, _ := json.Marshal(Request{Device: "/dev/ttyUSB0", Action: "connect"})
	conn.Write(append(req, '\n'))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	reply, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		t.Fatalf("reading reply: %v", err)
	}
	if reply != "Device connected.\n" {
		t.Fatalf("got %q", reply)
	}
	if dev.lastAction != "connect" {
		t.Fatalf("device saw action %q, want connect", dev.lastAction)
	}
}

func TestEndpointUnknownDevice(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	e := New(nil)
	go e.Serve(ln)

	conn, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	req, _ := json.Marshal(Request{Device: "/dev/nope", Action: "status"})
	conn.Write(append(req, '\n'))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	reply, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		t.Fatalf("reading reply: %v", err)
	}
	if reply != "Unknown device (/dev/nope).\n" {
		t.Fatalf("got %q", reply)
	}
}

func TestEndpointSurvivesMalformedRequest(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	e := New(nil)
	dev := &fakeDevice{reply: "Device status undefined"}
	e.Register("/dev/ttyUSB0", dev)
	go e.Serve(ln)

	conn, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	conn.Write([]byte("not valid json\n"))
	req, _ := json.Marshal(Request{Device: "/dev/ttyUSB0", Action: "status"})
	conn.Write(append(req, '\n'))

	reader := bufio.NewReader(conn)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	first, err := reader.ReadString('\n')
	if err != nil {
		t.Fatalf("reading first reply: %v", err)
	}
	if first == "" {
		t.Fatal("expected an error reply for the malformed line")
	}

	second, err := reader.ReadString('\n')
	if err != nil {
		t.Fatalf("reading second reply: %v", err)
	}
	if second != "Device status undefined\n" {
		t.Fatalf("got %q", second)
	}
}
