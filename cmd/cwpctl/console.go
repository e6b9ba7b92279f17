package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
)

// console prints engine notifications as lines.
type console struct {
	mu       sync.Mutex
	w        io.Writer
	lastText string
}

func newConsole(w io.Writer) *console {
	return &console{w: w}
}

func (c *console) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.w, format+"\n", args...)
}

func (c *console) KeyingStateChanged(localUp, remoteUp bool) {
	c.printf("key local=%s remote=%s", keyState(localUp), keyState(remoteUp))
}

func (c *console) FrequencyChanged(freq int64) {
	c.printf("freq %d", freq)
}

// TextUpdated prints only what was appended since the last update.
func (c *console) TextUpdated(text string) {
	c.mu.Lock()
	prev := c.lastText
	c.lastText = text
	c.mu.Unlock()

	switch {
	case text == "":
		c.printf("rx cleared")
	case strings.HasPrefix(text, prev):
		if added := strings.TrimSpace(text[len(prev):]); added != "" {
			c.printf("rx %s", added)
		}
	default:
		c.printf("rx %s", strings.TrimSpace(text))
	}
}

func (c *console) SendProgress(complete bool, text string) {
	if complete {
		c.printf("tx done")
		return
	}
	c.printf("tx %s", text)
}

func keyState(up bool) string {
	if up {
		return "up"
	}
	return "down"
}

type lineKind int

const (
	lineText lineKind = iota
	lineFrequency
	lineKeyUp
	lineKeyDown
	lineClear
	lineState
	lineQuit
	lineEmpty
)

type line struct {
	kind lineKind
	text string
	freq int64
}

var errUnknownCommand = errors.New("unknown command")

// parseLine reads one stdin line: a slash command or text to send.
func parseLine(raw string) (line, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return line{kind: lineEmpty}, nil
	}
	if !strings.HasPrefix(raw, "/") {
		text := sanitize(raw)
		if text == "" {
			return line{kind: lineEmpty}, nil
		}
		return line{kind: lineText, text: text}, nil
	}

	fields := strings.Fields(raw)
	switch fields[0] {
	case "/freq":
		if len(fields) != 2 {
			return line{}, fmt.Errorf("usage: /freq <channel>")
		}
		freq, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return line{}, fmt.Errorf("parse channel: %w", err)
		}
		return line{kind: lineFrequency, freq: freq}, nil
	case "/up":
		return line{kind: lineKeyUp}, nil
	case "/down":
		return line{kind: lineKeyDown}, nil
	case "/clear":
		return line{kind: lineClear}, nil
	case "/state":
		return line{kind: lineState}, nil
	case "/quit", "/exit":
		return line{kind: lineQuit}, nil
	default:
		return line{}, fmt.Errorf("%w: %s", errUnknownCommand, fields[0])
	}
}
