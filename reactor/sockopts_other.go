//go:build !linux

// File: reactor/sockopts_other.go
//
// Non-Linux platforms get no extra socket tuning; net.Listen's defaults
// are used as-is.
package reactor

import (
	"net"

	"github.com/rs/zerolog"
)

func applyListenerOptions(net.Listener, zerolog.Logger) {}
