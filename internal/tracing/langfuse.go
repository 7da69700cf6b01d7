// Package tracing wires eino callbacks to Langfuse so every completion and
// OCR call made through the chat model shows up as a trace.
package tracing

import (
	"log/slog"
	"os"
	"sync"

	"github.com/cloudwego/eino-ext/callbacks/langfuse"
	"github.com/cloudwego/eino/callbacks"

	"github.com/54b3r/pharmabot/internal/version"
)

// defaultHost is the self-hosted Langfuse address used when LANGFUSE_HOST is unset.
const defaultHost = "http://localhost:3000"

// Setup builds the Langfuse callback handler if LANGFUSE_PUBLIC_KEY and
// LANGFUSE_SECRET_KEY are set. The returned flush function must be called
// before process exit to send buffered traces. When Langfuse is not
// configured ok is false and the other values are nil.
func Setup() (handler callbacks.Handler, flush func(), ok bool) {
	publicKey := os.Getenv("LANGFUSE_PUBLIC_KEY")
	secretKey := os.Getenv("LANGFUSE_SECRET_KEY")
	if publicKey == "" || secretKey == "" {
		return nil, nil, false
	}
	host := os.Getenv("LANGFUSE_HOST")
	if host == "" {
		host = defaultHost
	}

	handler, flush = langfuse.NewLangfuseHandler(&langfuse.Config{
		Host:      host,
		PublicKey: publicKey,
		SecretKey: secretKey,
		Name:      "pharmabot",
		Release:   version.Get().Version,
	})
	return handler, flush, true
}

var registerOnce sync.Once

// Enable registers the Langfuse handler globally so that components started
// with callbacks.InitCallbacks report to it. It returns the flush function,
// which is a no-op when tracing is disabled. Only the first call registers.
func Enable(log *slog.Logger) func() {
	handler, flush, ok := Setup()
	if !ok {
		log.Debug("tracing: langfuse not configured")
		return func() {}
	}
	registerOnce.Do(func() {
		callbacks.AppendGlobalHandlers(handler)
	})
	log.Info("tracing: langfuse enabled", slog.String("host", hostOrDefault()))
	return flush
}

func hostOrDefault() string {
	if h := os.Getenv("LANGFUSE_HOST"); h != "" {
		return h
	}
	return defaultHost
}
