package srt

import (
	"errors"
	"io"
	"log/slog"
	"strings"

	"github.com/zsiec/pv4/internal/ingest"
)

// readBufferSize holds several SRT live payloads (1316 bytes each).
const readBufferSize = 1316 * 16

// latencyNs is the SRT latency setting in nanoseconds (120ms).
const latencyNs = 120_000_000

// pump copies src into the registry stream for key until src ends or the
// pipe is closed by the reader. A clean EOF unregisters the stream; any
// other read error is passed on to the reader side.
func pump(log *slog.Logger, registry *ingest.Registry, key, remote string, src io.Reader) error {
	stream, writer, err := registry.Register(key)
	if err != nil {
		return err
	}
	stream.SetRemoteAddr(remote)

	var readErr error
	buf := make([]byte, readBufferSize)
	for {
		n, err := src.Read(buf)
		if n > 0 {
			stream.RecordRead(n)
			if _, werr := writer.Write(buf[:n]); werr != nil {
				log.Debug("pipe write error", "stream_key", key, "error", werr)
				break
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.Debug("read error", "stream_key", key, "error", err)
				readErr = err
			}
			break
		}
	}

	stats := stream.Stats()
	if readErr != nil {
		registry.Fail(key, readErr)
	} else {
		registry.Unregister(key)
	}
	log.Info("connection closed", "stream_key", key,
		"bytes", stats.BytesReceived, "reads", stats.ReadCount,
		"uptime_ms", stats.UptimeMs)
	return nil
}

// extractStreamKey maps an SRT stream id such as "/live/cam1" to its key.
func extractStreamKey(streamID string) string {
	streamID = strings.TrimPrefix(streamID, "/")
	streamID = strings.TrimPrefix(streamID, "live/")
	if streamID == "" {
		return "default"
	}
	return streamID
}
