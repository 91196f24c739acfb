// File: protocol/consts.go
// Package protocol
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// RFC6455 frame header bits and opcodes shared by the frame codec and
// the connection's control-frame handling.

package protocol

const (
	FinBit  byte = 0x80
	MaskBit byte = 0x80
)

const (
	OpcodeContinuation byte = 0x0
	OpcodeText         byte = 0x1
	OpcodeBinary       byte = 0x2
	OpcodeClose        byte = 0x8
	OpcodePing         byte = 0x9
	OpcodePong         byte = 0xA
)
