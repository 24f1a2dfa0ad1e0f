package main

import (
	"fmt"
	"log"
	"math/rand"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

const (
	serverAddr = "127.0.0.1:8080"
	// Stays under the server's default per-IP connection rate.
	numClients  = 40
	numRooms    = 5
	numMessages = 5
)

// testStats tracks load test statistics.
type testStats struct {
	Connected       int32
	ConnectFailures int32
	NamesRegistered int32
	RoomsCreated    int32
	RoomsJoined     int32
	MessagesSent    int32
	SendErrors      int32
	BytesReceived   int64
}

var stats testStats

func main() {
	log.Println("Starting chat server load test...")
	log.Printf("Configuration: %d clients, %d rooms, %d messages per client", numClients, numRooms, numMessages)

	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < numClients; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			runClient(id)
		}(i)
	}

	wg.Wait()
	printStats(time.Since(start))
}

func runClient(id int) {
	conn, err := net.DialTimeout("tcp", serverAddr, 5*time.Second)
	if err != nil {
		atomic.AddInt32(&stats.ConnectFailures, 1)
		return
	}
	defer conn.Close()
	atomic.AddInt32(&stats.Connected, 1)

	// One write must reach the server as one chunk, so Nagle coalescing
	// is off and writes are paced apart.
	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
	}

	// Drain replies so server writes never block on this client.
	go func() {
		buf := make([]byte, 2048)
		for {
			n, err := conn.Read(buf)
			if err != nil {
				return
			}
			atomic.AddInt64(&stats.BytesReceived, int64(n))
		}
	}()

	send := func(line string) bool {
		if _, err := conn.Write([]byte(line)); err != nil {
			atomic.AddInt32(&stats.SendErrors, 1)
			return false
		}
		time.Sleep(20 * time.Millisecond)
		return true
	}

	if !send(fmt.Sprintf("tester-%d", id)) {
		return
	}
	atomic.AddInt32(&stats.NamesRegistered, 1)

	room := fmt.Sprintf("load-%d", id%numRooms)
	if id < numRooms {
		if send("#create " + room) {
			atomic.AddInt32(&stats.RoomsCreated, 1)
		}
	} else {
		// Give the creators a head start so the join targets exist.
		time.Sleep(300 * time.Millisecond)
		if send("#join " + room) {
			atomic.AddInt32(&stats.RoomsJoined, 1)
		}
	}

	for i := 0; i < numMessages; i++ {
		if !send(fmt.Sprintf("message %d from tester-%d", i, id)) {
			return
		}
		atomic.AddInt32(&stats.MessagesSent, 1)
		time.Sleep(time.Duration(rand.Intn(50)) * time.Millisecond)
	}

	send("#exit")
}

func printStats(duration time.Duration) {
	log.Println("=== Load Test Results ===")
	log.Printf("Duration: %v", duration)
	log.Printf("Connected: %d", atomic.LoadInt32(&stats.Connected))
	log.Printf("Connect Failures: %d", atomic.LoadInt32(&stats.ConnectFailures))
	log.Printf("Names Registered: %d", atomic.LoadInt32(&stats.NamesRegistered))
	log.Printf("Rooms Created: %d", atomic.LoadInt32(&stats.RoomsCreated))
	log.Printf("Rooms Joined: %d", atomic.LoadInt32(&stats.RoomsJoined))
	log.Printf("Messages Sent: %d", atomic.LoadInt32(&stats.MessagesSent))
	log.Printf("Send Errors: %d", atomic.LoadInt32(&stats.SendErrors))
	log.Printf("Bytes Received: %d", atomic.LoadInt64(&stats.BytesReceived))

	sent := atomic.LoadInt32(&stats.MessagesSent)
	if duration > 0 && sent > 0 {
		log.Printf("Throughput: %.1f messages/sec", float64(sent)/duration.Seconds())
	}
}
