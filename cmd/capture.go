// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Tracekit Labs

package cmd

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"go.bug.st/serial"
	"golang.org/x/term"

	"github.com/tracekit/vanprobe/pkg/vanbus"
)

// Connection provides a common interface for reading sample bytes from a
// serial port or WebSocket
type Connection interface {
	io.Reader
	io.Closer
}

// SerialConnection wraps a serial port
type SerialConnection struct {
	port serial.Port
}

func (s *SerialConnection) Read(p []byte) (int, error) {
	return s.port.Read(p)
}

func (s *SerialConnection) Close() error {
	return s.port.Close()
}

// ErrConnectionClosed is returned when reading from a closed WebSocket connection
var ErrConnectionClosed = fmt.Errorf("websocket connection closed")

// WebSocketConnection wraps a WebSocket connection for byte-level reading
type WebSocketConnection struct {
	conn      *websocket.Conn
	buf       []byte
	bufOffset int
	closed    bool
}

func (w *WebSocketConnection) Read(p []byte) (int, error) {
	if w.closed {
		return 0, ErrConnectionClosed
	}

	// If we have buffered data, return it first
	if w.bufOffset < len(w.buf) {
		n := copy(p, w.buf[w.bufOffset:])
		w.bufOffset += n
		return n, nil
	}

	// Read next message from WebSocket (non-recursive loop to avoid stack overflow)
	for {
		messageType, data, err := w.conn.ReadMessage()
		if err != nil {
			w.closed = true
			return 0, err
		}

		// Sample streams are binary; skip anything else
		if messageType != websocket.BinaryMessage {
			continue
		}

		w.buf = data
		w.bufOffset = 0
		n := copy(p, w.buf)
		w.bufOffset = n
		return n, nil
	}
}

func (w *WebSocketConnection) Close() error {
	return w.conn.Close()
}

// OpenSerialConnection opens a serial port connection
func OpenSerialConnection(portName string, baudRate int) (Connection, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %v", portName, err)
	}

	return &SerialConnection{port: port}, nil
}

// OpenWebSocketConnection opens a WebSocket connection with HTTP Basic auth
func OpenWebSocketConnection(wsURL, username, password string, skipSSLVerify bool) (Connection, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %v", err)
	}

	switch u.Scheme {
	case "ws", "wss":
		// OK
	default:
		return nil, fmt.Errorf("unsupported URL scheme: %s (use ws:// or wss://)", u.Scheme)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	if u.Scheme == "wss" {
		dialer.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: skipSSLVerify,
		}
	}

	headers := http.Header{}
	if username != "" && password != "" {
		credentials := base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
		headers.Set("Authorization", "Basic "+credentials)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	conn, resp, err := dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("WebSocket connection failed (HTTP %d): %v", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("WebSocket connection failed: %v", err)
	}

	return &WebSocketConnection{conn: conn}, nil
}

// GetPassword retrieves password from environment or prompts user
func GetPassword() (string, error) {
	if pw := os.Getenv("VANPROBE_PASSWORD"); pw != "" {
		return pw, nil
	}

	fmt.Fprint(os.Stderr, "Password: ")

	// Read password without echo
	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		// Fallback to regular input if terminal functions fail
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("failed to read password: %v", err)
		}
		fmt.Fprintln(os.Stderr)
		return strings.TrimSpace(password), nil
	}

	fmt.Fprintln(os.Stderr)
	return string(passwordBytes), nil
}

// OpenSampleSource opens the configured capture source: a file, a serial
// port, or a WebSocket stream. All three carry packed samples, 8 per byte,
// least significant bit first.
func OpenSampleSource() (vanbus.SampleSource, io.Closer, string, error) {
	if capturePath != "" {
		f, err := os.Open(capturePath)
		if err != nil {
			return nil, nil, "", fmt.Errorf("open capture %s: %w", capturePath, err)
		}
		return NewPackedSampleReader(bufio.NewReaderSize(f, 64*1024)), f,
			fmt.Sprintf("File: %s", capturePath), nil
	}

	if wsURL != "" {
		password := ""
		if wsUsername != "" {
			var err error
			password, err = GetPassword()
			if err != nil {
				return nil, nil, "", err
			}
		}

		conn, err := OpenWebSocketConnection(wsURL, wsUsername, password, wsNoSSLVerify)
		if err != nil {
			return nil, nil, "", err
		}
		return NewPackedSampleReader(conn), conn, fmt.Sprintf("WebSocket: %s", wsURL), nil
	}

	if portName != "" {
		conn, err := OpenSerialConnection(portName, baudRate)
		if err != nil {
			return nil, nil, "", err
		}
		return NewPackedSampleReader(conn), conn,
			fmt.Sprintf("Serial: %s @ %d baud", portName, baudRate), nil
	}

	return nil, nil, "", fmt.Errorf("one of --capture, --port or --url must be specified")
}

// PackedSampleReader unpacks a byte stream into samples, least significant
// bit first, assigning dense ticks from zero.
type PackedSampleReader struct {
	r    io.Reader
	buf  [4096]byte
	n    int
	pos  int
	bit  int
	tick uint64
}

// NewPackedSampleReader wraps a packed capture stream.
func NewPackedSampleReader(r io.Reader) *PackedSampleReader {
	return &PackedSampleReader{r: r}
}

// ReadSample implements vanbus.SampleSource.
func (p *PackedSampleReader) ReadSample() (vanbus.Sample, error) {
	if p.pos >= p.n {
		n, err := p.r.Read(p.buf[:])
		if n == 0 {
			if err == nil {
				err = io.EOF
			}
			return vanbus.Sample{}, err
		}
		p.n = n
		p.pos = 0
		p.bit = 0
	}

	level := p.buf[p.pos]>>uint(p.bit)&1 != 0
	s := vanbus.Sample{Tick: p.tick, Level: level}
	p.tick++
	p.bit++
	if p.bit == 8 {
		p.bit = 0
		p.pos++
	}
	return s, nil
}

// PackSamples packs sample levels into bytes, 8 per byte, least significant
// bit first. The tail of a partial byte is padded with recessive high.
func PackSamples(samples []vanbus.Sample) []byte {
	out := make([]byte, 0, (len(samples)+7)/8)
	var cur byte
	bit := 0
	for _, s := range samples {
		if s.Level {
			cur |= 1 << uint(bit)
		}
		bit++
		if bit == 8 {
			out = append(out, cur)
			cur = 0
			bit = 0
		}
	}
	if bit > 0 {
		for ; bit < 8; bit++ {
			cur |= 1 << uint(bit)
		}
		out = append(out, cur)
	}
	return out
}
