package at

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidCommand is returned when a Command is outside the catalog.
	ErrInvalidCommand = errors.New("invalid AT command")

	// ErrInvalidParams is returned when the parameters do not belong to the
	// command, carry an out of range lookup value, or would produce a frame
	// longer than MaxFrameSize.
	ErrInvalidParams = errors.New("invalid AT command parameters")
)

// Command identifies one entry of the modem command catalog.
type Command int

const (
	CmdTest Command = iota
	CmdICCID
	CmdTimeZoneReporting
	CmdTimeZoneUpdate
	CmdExtendedConfig
	CmdPDPContext
	CmdRegistration
	CmdOperator
	CmdSignalQuality
	CmdNetworkTime
	CmdPing
	CmdHTTPConfig
	CmdHTTPURL
	CmdHTTPPost
	CmdHTTPGet
	CmdHTTPPut
	CmdHTTPRead

	numCommands
)

var commandNames = [numCommands]string{
	CmdTest:              "",
	CmdICCID:             "QCCID",
	CmdTimeZoneReporting: "CTZR",
	CmdTimeZoneUpdate:    "CTZU",
	CmdExtendedConfig:    "QCFG",
	CmdPDPContext:        "CGDCONT",
	CmdRegistration:      "CEREG",
	CmdOperator:          "COPS",
	CmdSignalQuality:     "QCSQ",
	CmdNetworkTime:       "QLTS",
	CmdPing:              "QPING",
	CmdHTTPConfig:        "QHTTPCFG",
	CmdHTTPURL:           "QHTTPURL",
	CmdHTTPPost:          "QHTTPPOST",
	CmdHTTPGet:           "QHTTPGET",
	CmdHTTPPut:           "QHTTPPUT",
	CmdHTTPRead:          "QHTTPREAD",
}

// Valid reports whether c is part of the catalog.
func (c Command) Valid() bool {
	return c >= 0 && c < numCommands
}

// Name returns the wire name of the command, without the leading '+'.
// The test command has an empty name.
func (c Command) Name() string {
	if !c.Valid() {
		return ""
	}
	return commandNames[c]
}

func (c Command) String() string {
	switch {
	case !c.Valid():
		return fmt.Sprintf("Command(%d)", int(c))
	case c == CmdTest:
		return "AT"
	default:
		return "AT+" + commandNames[c]
	}
}
