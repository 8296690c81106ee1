package proxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/mixaill76/claude_bridge/internal/converter/anthropic"
)

// streamChunkWriteTimeout is the per-chunk write deadline for streaming responses.
// If no data flows for this duration, the connection is terminated.
const streamChunkWriteTimeout = 60 * time.Second

var streamBufPool = sync.Pool{
	New: func() any {
		buf := make([]byte, 8192)
		return &buf
	},
}

// handleConvertedStreaming pipes the upstream OpenAI SSE body through the
// stream converter and relays the resulting Anthropic events to the client.
// The converter runs in its own goroutine writing into a pipe; the read side
// is flushed to the client chunk by chunk.
func (p *Proxy) handleConvertedStreaming(w http.ResponseWriter, upstream io.Reader, sc *anthropic.StreamConverter, requestID string) error {
	p.logger.Debug("Starting streaming response", "request_id", requestID)

	pr, pw := io.Pipe()
	defer func() {
		_ = pr.Close()
	}()

	// WaitGroup ensures the converter goroutine completes before we return,
	// preventing a write into a closed pipe from going unobserved.
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := sc.Run(upstream, pw); err != nil {
			// Don't log here; CloseWithError propagates the error to the
			// reader side where streamToClient logs it as "Streaming read error".
			_ = pw.CloseWithError(fmt.Errorf("stream convert: %w", err))
		} else {
			_ = pw.Close()
		}
	}()

	if err := p.streamToClient(w, pr, requestID, func() { _ = pr.Close() }); err != nil {
		wg.Wait()
		return err
	}
	wg.Wait()

	p.logger.Debug("Streaming response completed", "request_id", requestID)
	return nil
}

func (p *Proxy) streamToClient(
	w http.ResponseWriter,
	reader io.Reader,
	requestID string,
	onWriteErr func(),
) error {
	_, ok := w.(http.Flusher)
	if !ok {
		p.logger.Error("Streaming not supported", "request_id", requestID)
		http.Error(w, "Streaming Not Supported", http.StatusInternalServerError)
		return fmt.Errorf("streaming not supported")
	}
	controller := http.NewResponseController(w)

	buf := streamBufPool.Get().(*[]byte)
	defer streamBufPool.Put(buf)
	for {
		n, err := reader.Read(*buf)
		if n > 0 {
			// Set write deadline before each write: keeps active streams alive,
			// terminates if client stops reading for streamChunkWriteTimeout.
			_ = controller.SetWriteDeadline(time.Now().Add(streamChunkWriteTimeout))
			if _, writeErr := w.Write((*buf)[:n]); writeErr != nil {
				if isClientDisconnectError(writeErr) {
					p.logger.Warn("Client disconnected during streaming", "error", writeErr, "request_id", requestID)
				} else {
					p.logger.Error("Failed to write streaming chunk", "error", writeErr, "request_id", requestID)
				}
				if onWriteErr != nil {
					onWriteErr()
				}
				return writeErr
			}
			p.flushStreaming(controller, requestID)
		}
		if err != nil {
			if err != io.EOF {
				p.logger.Error("Streaming read error", "error", err, "request_id", requestID)
			}
			break
		}
	}
	return nil
}

func (p *Proxy) flushStreaming(controller *http.ResponseController, requestID string) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Flusher panic", "panic", r, "request_id", requestID)
		}
	}()
	if err := controller.Flush(); err != nil {
		if errors.Is(err, http.ErrNotSupported) {
			p.logger.Error("Streaming not supported", "request_id", requestID)
		} else {
			p.logger.Error("Flusher error", "error", err, "request_id", requestID)
		}
	}
}

// isTimeoutError checks if an error is a timeout error
func isTimeoutError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	return false
}

// isClientDisconnectError checks if an error indicates the client disconnected
// (broken pipe, connection reset, context canceled). These are expected during
// normal operation and should be logged at lower severity.
func isClientDisconnectError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return true
	}
	if errors.Is(err, syscall.EPIPE) {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "write: broken pipe") ||
		strings.Contains(msg, "connection reset by peer")
}
