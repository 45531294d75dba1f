// WAConnect Go - WhatsApp API Gateway
// Copyright (c) 2026 VertexHub
// Licensed under MIT License
// https://github.com/vertexhub/waconnect-go

// Package signal implements the X3DH session setup and Double Ratchet
// message cipher used to end-to-end encrypt stanza payloads, following
// the same manual wire structs, *zap.SugaredLogger injection, and
// sentinel error types used for transport security.
package signal

import (
	"fmt"

	"github.com/waconnect/waconnect-go/internal/jid"
)

// Address identifies one Signal session endpoint: a specific device of
// a specific user, addressed as "user.device".
type Address struct {
	User   string
	Device uint16
}

func NewAddress(j jid.JID) Address {
	return Address{User: j.User, Device: j.Device}
}

func (a Address) String() string {
	return fmt.Sprintf("%s.%d", a.User, a.Device)
}
