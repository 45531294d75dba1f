// Package metrics exposes the Prometheus counters and histograms the
// connection, handshake, and session-cipher layers update as they run.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FramesReceivedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "waconnect_frames_received_total",
			Help: "Total number of length-prefixed frames read off the socket.",
		},
	)

	FramesSentTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "waconnect_frames_sent_total",
			Help: "Total number of length-prefixed frames written to the socket.",
		},
	)

	HandshakeAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "waconnect_handshake_attempts_total",
			Help: "Total number of Noise XX handshakes attempted, by outcome.",
		},
		[]string{"result"}, // success, failure
	)

	HandshakeDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "waconnect_handshake_duration_seconds",
			Help:    "Time to complete the Noise XX handshake.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 10),
		},
	)

	RatchetStepsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "waconnect_ratchet_steps_total",
			Help: "Total number of Double Ratchet DH steps performed, by direction.",
		},
		[]string{"direction"}, // send, receive
	)

	DecryptionFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "waconnect_decryption_failures_total",
			Help: "Total number of inbound Signal message decryption failures, by reason.",
		},
		[]string{"reason"},
	)

	PairingOutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "waconnect_pairing_outcomes_total",
			Help: "Total number of device pairing attempts, by outcome.",
		},
		[]string{"outcome"}, // success, timeout, hmac_mismatch, signature_invalid
	)

	QRRefsIssuedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "waconnect_qr_refs_issued_total",
			Help: "Total number of QR pairing refs issued, including rotations.",
		},
	)

	ConnectionState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "waconnect_connection_state",
			Help: "Current connection state as an ordinal: 0=closed,1=connecting,2=handshaking,3=authenticating,4=open.",
		},
	)

	MessagesSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "waconnect_messages_sent_total",
			Help: "Total number of outbound messages, by per-device fanout result.",
		},
		[]string{"result"}, // acked, timeout
	)

	MessagesDecryptedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "waconnect_messages_decrypted_total",
			Help: "Total number of inbound messages successfully decrypted.",
		},
	)

	DuplicateMessagesDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "waconnect_duplicate_messages_dropped_total",
			Help: "Total number of inbound messages dropped as duplicates of a recently seen (from, id) pair.",
		},
	)
)
