/*
NAME
  main.go

DESCRIPTION
  Depthcat attaches to a published depth-fusion transport (shared memory or
  socket) and prints the frame and checksum status of each observed frame.

AUTHORS
  AusOcean Depth Team

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Depthcat is a small diagnostic reader: point it at a running depthd's
// shared-memory segment or socket endpoint and it prints each newly
// observed frame's id, dimensions, and checksum verification status.
package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/ausocean/depth/transport/shm"
	"github.com/ausocean/depth/transport/socket"
)

func main() {
	transportPtr := flag.String("transport", "shm", `Transport to read from: "shm" or "socket".`)
	pathPtr := flag.String("path", "depthfusion", "Shared-memory segment path (shm transport only).")
	widthPtr := flag.Uint("width", 640, "Shared-memory segment capacity width (shm transport only).")
	heightPtr := flag.Uint("height", 480, "Shared-memory segment capacity height (shm transport only).")
	endpointPtr := flag.String("endpoint", "unix:/tmp/depthfusion.sock", "Socket endpoint (socket transport only).")
	pollPtr := flag.Duration("poll", 100*time.Millisecond, "Polling interval for the shm transport.")
	flag.Parse()

	switch *transportPtr {
	case "shm":
		catSHM(*pathPtr, uint32(*widthPtr), uint32(*heightPtr), *pollPtr)
	case "socket":
		catSocket(*endpointPtr)
	default:
		log.Fatalf("unknown transport %q, want shm or socket", *transportPtr)
	}
}

func catSHM(path string, width, height uint32, poll time.Duration) {
	rd, err := shm.Open(path, width, height)
	if err != nil {
		log.Fatalf("could not open shared-memory segment: %v", err)
	}
	defer rd.Close()

	var lastFrameID uint64
	var haveLast bool
	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	for range ticker.C {
		fv, err := rd.Latest()
		if errors.Is(err, shm.ErrNoFrame) {
			continue
		}
		if err != nil {
			log.Printf("read error: %v", err)
			continue
		}
		if haveLast && fv.FrameID == lastFrameID {
			continue
		}
		lastFrameID, haveLast = fv.FrameID, true
		fmt.Printf("frame=%d dims=%dx%d checksum_ok=%v\n", fv.FrameID, fv.Width, fv.Height, rd.VerifyChecksum(fv))
	}
}

func catSocket(endpoint string) {
	c, err := socket.Dial(endpoint, 5*time.Second)
	if err != nil {
		log.Fatalf("could not connect to %s: %v", endpoint, err)
	}
	defer c.Close()

	for {
		f, err := c.Latest()
		if err != nil {
			log.Printf("read error, reconnecting: %v", err)
			c, err = socket.Dial(endpoint, 5*time.Second)
			if err != nil {
				log.Fatalf("could not reconnect to %s: %v", endpoint, err)
			}
			continue
		}
		fmt.Printf("frame=%d dims=%dx%d checksum_ok=%v\n", f.FrameID, f.Width, f.Height, c.VerifyChecksum(f))
	}
}
