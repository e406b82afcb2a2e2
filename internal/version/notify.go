// Copyright The Linux Foundation and each contributor to LFX.
// SPDX-License-Identifier: MIT

package version

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
)

// CommitEvent is published after a durable write or delete when a notify
// subject is configured. It replaces the polling loop
// original_source/examples/blockchain_integration.py used to discover new
// state with a push model, grounded in the teacher's own use of
// github.com/nats-io/nats.go for its event fan-out.
type CommitEvent struct {
	Key       string `json:"key"`
	Version   uint64 `json:"version"`
	Tombstone bool   `json:"tombstone"`
	Root      string `json:"root"` // hex-encoded Merkle root after this commit
}

// notifier publishes CommitEvents to a NATS subject. A nil *notifier (what
// newNotifier returns for an empty subject) disables publication entirely,
// matching the optional nature of this feature.
type notifier struct {
	conn    *nats.Conn
	subject string
	logger  *slog.Logger
}

func newNotifier(natsURL, subject string, logger *slog.Logger) (*notifier, error) {
	if subject == "" {
		return nil, nil
	}
	conn, err := nats.Connect(natsURL)
	if err != nil {
		return nil, fmt.Errorf("amdb: connecting to NATS for commit notifications: %w", err)
	}
	return &notifier{conn: conn, subject: subject, logger: logger}, nil
}

// publish best-effort publishes ev. A notification failure never fails the
// caller's commit — it is logged and swallowed, matching §9's treatment of
// this feature as additive and non-authoritative.
func (n *notifier) publish(ev CommitEvent) {
	if n == nil {
		return
	}
	b, err := json.Marshal(ev)
	if err != nil {
		n.logger.With("error", err).Warn("failed to encode commit notification")
		return
	}
	if err := n.conn.Publish(n.subject, b); err != nil {
		n.logger.With("error", err, "subject", n.subject).Warn("failed to publish commit notification")
	}
}

func (n *notifier) close() {
	if n == nil {
		return
	}
	n.conn.Close()
}
