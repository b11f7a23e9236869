package chat

import "log/slog"

// StartOutboundWriter drains out to conn until out is closed or a write
// fails. The returned channel is closed when the writer has stopped.
func StartOutboundWriter(conn Conn, out <-chan string, logger *slog.Logger) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for msg := range out {
			// Best-effort. If the connection breaks, just stop the writer.
			if err := conn.WriteLine(msg); err != nil {
				if !isClosedErr(err) {
					logger.Debug("outbound write failed", "error", err)
				}
				return
			}
		}
	}()
	return done
}
