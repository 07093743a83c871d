// If you are AI: This file implements the relay's teardown path: signal
// handling and the ordered close of every component. Cancelling the run
// context makes each owner goroutine close its own sockets (stream producers
// and consumers, bridge peers, edge sessions, listeners); the HTTP surface
// goes down last so health stays observable while the relay drains.

package server

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// shutdownTimeout bounds how long teardown may take once initiated.
const shutdownTimeout = 5 * time.Second

// WaitForSignal blocks until SIGINT or SIGTERM, then shuts the relay down.
// Called from the main goroutine after Start.
func (s *Server) WaitForSignal() error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	sig := <-sigChan
	log.Printf("[SHUTDOWN] Received %v, shutting down...", sig)

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return s.Shutdown(ctx)
}

// Shutdown stops every component and waits for their goroutines. The run
// context cancel fans out to the owner loops, each of which closes the
// sockets it owns: the stream relays close their producers, consumers and
// listen ports, the bridge closes both peers, the coordinator closes its
// edges. The HTTP listener is shut down afterwards.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	err := s.httpServer.Shutdown(ctx)
	if err == http.ErrServerClosed {
		err = nil
	}
	if s.httpDone != nil {
		select {
		case <-s.httpDone:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	log.Printf("[SHUTDOWN] Done.")
	return err
}
