// WAConnect Go - WhatsApp API Gateway
// Copyright (c) 2026 VertexHub
// Licensed under MIT License
// https://github.com/vertexhub/waconnect-go

// Package jid implements WhatsApp's user/device/server addressing scheme.
package jid

import (
	"fmt"
	"strconv"
	"strings"
)

// Well-known servers.
const (
	ServerDefault   = "s.whatsapp.net"
	ServerLID       = "lid"
	ServerGroup     = "g.us"
	ServerBroadcast = "broadcast"
	ServerNewsletter = "newsletter"
)

// JID identifies a WhatsApp user, device, or group.
type JID struct {
	User   string
	Device uint16
	Server string
}

// Empty is the zero-value JID.
var Empty = JID{}

// IsEmpty reports whether j has no user and no server.
func (j JID) IsEmpty() bool {
	return j.User == "" && j.Server == ""
}

// String renders the JID back to wire form: user[:device]@server.
func (j JID) String() string {
	if j.Server == "" {
		return j.User
	}
	if j.Device > 0 {
		return fmt.Sprintf("%s:%d@%s", j.User, j.Device, j.Server)
	}
	return fmt.Sprintf("%s@%s", j.User, j.Server)
}

// ToNonAD returns the JID with its device component stripped.
func (j JID) ToNonAD() JID {
	return JID{User: j.User, Server: j.Server}
}

// ADString formats the address the Signal layer uses: "user.device" / "user_lid.device".
func (j JID) ADString() string {
	return fmt.Sprintf("%s.%d", j.User, j.Device)
}

// Parse decodes a wire-form JID: "user@server" or "user:device@server".
func Parse(s string) (JID, error) {
	at := strings.LastIndexByte(s, '@')
	if at < 0 {
		return JID{}, fmt.Errorf("jid: missing '@' in %q", s)
	}
	server := s[at+1:]
	userPart := s[:at]
	if server == "" || userPart == "" {
		return JID{}, fmt.Errorf("jid: empty user or server in %q", s)
	}

	if colon := strings.IndexByte(userPart, ':'); colon >= 0 {
		user := userPart[:colon]
		devStr := userPart[colon+1:]
		dev, err := strconv.ParseUint(devStr, 10, 16)
		if err != nil {
			return JID{}, fmt.Errorf("jid: invalid device %q: %w", devStr, err)
		}
		return JID{User: user, Device: uint16(dev), Server: server}, nil
	}

	return JID{User: userPart, Server: server}, nil
}

// NewAD builds a device-addressed JID on the default user server.
func NewAD(user string, device uint16) JID {
	return JID{User: user, Device: device, Server: ServerDefault}
}

// IsAD reports whether the JID carries a nonzero device id, i.e. it was
// encoded in the wire format as an AD_JID rather than a JID_PAIR.
func (j JID) IsAD() bool {
	return j.Device > 0
}
