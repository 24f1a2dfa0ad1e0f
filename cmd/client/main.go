package main

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync/atomic"
	"syscall"
)

const (
	colorReset   = "\x1b[0m"
	colorRed     = "\x1b[31m"
	colorGreen   = "\x1b[32m"
	colorYellow  = "\x1b[33m"
	colorMagenta = "\x1b[35m"
	colorCyan    = "\x1b[36m"
	colorWhite   = "\x1b[97m"
)

var running atomic.Bool

func printColored(msg, color string) {
	fmt.Print(color + msg + colorReset)
}

// colorFor picks a color from the message shape: presence lines yellow,
// whispers magenta, listings cyan, refusals red, chat green.
func colorFor(msg string) string {
	switch {
	case strings.Contains(msg, "has joined") || strings.Contains(msg, "has left"):
		return colorYellow
	case strings.Contains(msg, "[Whisper"):
		return colorMagenta
	case strings.Contains(msg, "Available") || strings.Contains(msg, "Online users") ||
		strings.Contains(msg, "commands:"):
		return colorCyan
	case strings.Contains(msg, "Error") || strings.Contains(msg, "Failed") ||
		strings.Contains(msg, "kicked") || strings.Contains(msg, "banned") ||
		strings.Contains(msg, "muted"):
		return colorRed
	default:
		return colorGreen
	}
}

func receiveMessages(conn net.Conn, done chan<- struct{}) {
	defer close(done)

	buf := make([]byte, 2048)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			if running.Load() {
				printColored("\nDisconnected from server.\n", colorRed)
				running.Store(false)
			}
			return
		}
		msg := string(buf[:n])
		printColored(msg, colorFor(msg))
	}
}

func main() {
	host := "127.0.0.1"
	port := 8080
	if len(os.Args) >= 2 {
		host = os.Args[1]
	}
	if len(os.Args) >= 3 {
		p, err := strconv.Atoi(os.Args[2])
		if err != nil || p < 1 || p > 65535 {
			fmt.Fprintf(os.Stderr, "Invalid port: %s\n", os.Args[2])
			os.Exit(1)
		}
		port = p
	}

	fmt.Println("========================================")
	fmt.Println("              Chat Client               ")
	fmt.Println("========================================")
	fmt.Println()

	fmt.Printf("Connecting to %s:%d...\n", host, port)
	conn, err := net.Dial("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		fmt.Fprintln(os.Stderr, "Failed to connect to server")
		os.Exit(1)
	}
	running.Store(true)

	printColored("Connected!\n\n", colorGreen)

	stdin := bufio.NewScanner(os.Stdin)

	fmt.Print("Enter your username: ")
	username := "Anonymous"
	if stdin.Scan() {
		if name := strings.TrimSpace(stdin.Text()); name != "" {
			username = name
		}
	}
	if _, err := conn.Write([]byte(username)); err != nil {
		fmt.Fprintln(os.Stderr, "Failed to send username")
		os.Exit(1)
	}

	printColored("\nWelcome, "+username+"!\n", colorYellow)
	printColored("Type #help for available commands. Type messages and press Enter to send.\n\n", colorCyan)

	done := make(chan struct{})
	go receiveMessages(conn, done)

	// Ctrl-C says goodbye to the server before dropping the socket.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		running.Store(false)
		_, _ = conn.Write([]byte("#exit"))
		conn.Close()
		os.Exit(0)
	}()

	for running.Load() && stdin.Scan() {
		input := stdin.Text()
		if input == "" {
			continue
		}

		if _, err := conn.Write([]byte(input)); err != nil {
			printColored("Failed to send message.\n", colorRed)
			break
		}

		if input == "#exit" {
			break
		}
		if input[0] != '#' {
			printColored("You: "+input+"\n", colorWhite)
		}
	}

	running.Store(false)
	conn.Close()
	<-done
}
