package at

import (
	"fmt"
	"strconv"
	"strings"
)

// Params carries the arguments of a write command. Every command that takes
// arguments has exactly one Params type; the type determines the command.
type Params interface {
	// Command returns the catalog entry these parameters belong to.
	Command() Command

	appendParams(dst []byte) ([]byte, error)
}

type TimeZoneReportingMode int

const (
	TimeZoneReportingDisabled TimeZoneReportingMode = 0
	TimeZoneReportingEnabled  TimeZoneReportingMode = 1
	TimeZoneReportingExtended TimeZoneReportingMode = 2
)

type TimeZoneUpdateMode int

const (
	TimeZoneUpdateDisabled      TimeZoneUpdateMode = 0
	TimeZoneUpdateEnabled       TimeZoneUpdateMode = 1
	TimeZoneUpdateWithLocalTime TimeZoneUpdateMode = 3
)

// ExtendedConfigKey selects the AT+QCFG setting.
type ExtendedConfigKey int

const (
	ScanSequence ExtendedConfigKey = iota
	ScanMode
	IoTOperationMode

	numExtendedConfigKeys
)

var extendedConfigKeys = [numExtendedConfigKeys]string{
	ScanSequence:     "nwscanseq",
	ScanMode:         "nwscanmode",
	IoTOperationMode: "iotopmode",
}

type PDPType int

const (
	PDPTypeIPv4 PDPType = iota
	PDPTypePPP
	PDPTypeIPv6
	PDPTypeIPv4v6

	numPDPTypes
)

var pdpTypes = [numPDPTypes]string{
	PDPTypeIPv4:   "IPV4",
	PDPTypePPP:    "PPP",
	PDPTypeIPv6:   "IPV6",
	PDPTypeIPv4v6: "IPV4V6",
}

type RegistrationMode int

const (
	RegistrationDisabled           RegistrationMode = 0
	RegistrationEnabled            RegistrationMode = 1
	RegistrationWithLocation       RegistrationMode = 2
	RegistrationWithLocationAndPSM RegistrationMode = 4
)

type NetworkTimeMode int

const (
	NetworkTimeLastSynced NetworkTimeMode = 0
	NetworkTimeGMT        NetworkTimeMode = 1
	NetworkTimeLocal      NetworkTimeMode = 2
)

// HTTPConfigKey selects the AT+QHTTPCFG setting.
type HTTPConfigKey int

const (
	HTTPContextID HTTPConfigKey = iota
	HTTPRequestHeader
	HTTPResponseHeader
	HTTPContentType

	numHTTPConfigKeys
)

var httpConfigKeys = [numHTTPConfigKeys]string{
	HTTPContextID:      "contextid",
	HTTPRequestHeader:  "requestheader",
	HTTPResponseHeader: "responseheader",
	HTTPContentType:    "contenttype",
}

// TimeZoneReporting is AT+CTZR=<mode>.
type TimeZoneReporting struct {
	Mode TimeZoneReportingMode
}

// TimeZoneUpdate is AT+CTZU=<mode>.
type TimeZoneUpdate struct {
	Mode TimeZoneUpdateMode
}

// ExtendedConfig is AT+QCFG="<key>",<mode>,<effect>. Mode is written as
// given; callers quote it themselves when the setting expects a string.
type ExtendedConfig struct {
	Key    ExtendedConfigKey
	Mode   string
	Effect int
}

// PDPContext is AT+CGDCONT=<cid>,"<type>","<apn>".
type PDPContext struct {
	CID  int
	Type PDPType
	APN  string
}

// Registration is AT+CEREG=<mode>.
type Registration struct {
	Mode RegistrationMode
}

// NetworkTime is AT+QLTS=<mode>.
type NetworkTime struct {
	Mode NetworkTimeMode
}

// Ping is AT+QPING=<contextID>,"<host>".
type Ping struct {
	ContextID int
	Host      string
}

// HTTPConfig is AT+QHTTPCFG="<key>",<value>.
type HTTPConfig struct {
	Key   HTTPConfigKey
	Value int
}

// HTTPURL is AT+QHTTPURL=<length>,<timeout>.
type HTTPURL struct {
	Length  int
	Timeout int
}

// HTTPPost is AT+QHTTPPOST=<size>,<input timeout>,<response timeout>.
type HTTPPost struct {
	BodySize        int
	InputTimeout    int
	ResponseTimeout int
}

// HTTPPut is AT+QHTTPPUT and shares the HTTPPost encoding.
type HTTPPut struct {
	BodySize        int
	InputTimeout    int
	ResponseTimeout int
}

// HTTPGet is AT+QHTTPGET=<timeout>.
type HTTPGet struct {
	Timeout int
}

// HTTPRead is AT+QHTTPREAD=<timeout>. The modem firmware has always been
// driven with the URL timeout here.
type HTTPRead struct {
	Timeout int
}

func (TimeZoneReporting) Command() Command { return CmdTimeZoneReporting }
func (TimeZoneUpdate) Command() Command    { return CmdTimeZoneUpdate }
func (ExtendedConfig) Command() Command    { return CmdExtendedConfig }
func (PDPContext) Command() Command        { return CmdPDPContext }
func (Registration) Command() Command      { return CmdRegistration }
func (NetworkTime) Command() Command       { return CmdNetworkTime }
func (Ping) Command() Command              { return CmdPing }
func (HTTPConfig) Command() Command        { return CmdHTTPConfig }
func (HTTPURL) Command() Command           { return CmdHTTPURL }
func (HTTPPost) Command() Command          { return CmdHTTPPost }
func (HTTPPut) Command() Command           { return CmdHTTPPut }
func (HTTPGet) Command() Command           { return CmdHTTPGet }
func (HTTPRead) Command() Command          { return CmdHTTPRead }

func (p TimeZoneReporting) appendParams(dst []byte) ([]byte, error) {
	return appendInts(dst, int(p.Mode)), nil
}

func (p TimeZoneUpdate) appendParams(dst []byte) ([]byte, error) {
	return appendInts(dst, int(p.Mode)), nil
}

func (p ExtendedConfig) appendParams(dst []byte) ([]byte, error) {
	if p.Key < 0 || p.Key >= numExtendedConfigKeys {
		return nil, fmt.Errorf("%w: extended config key %d", ErrInvalidParams, p.Key)
	}
	if p.Mode == "" || strings.ContainsAny(p.Mode, "\r\n") {
		return nil, fmt.Errorf("%w: extended config mode %q", ErrInvalidParams, p.Mode)
	}
	dst = appendQuoted(dst, extendedConfigKeys[p.Key])
	dst = append(dst, ',')
	dst = append(dst, p.Mode...)
	dst = append(dst, ',')
	return appendInts(dst, p.Effect), nil
}

func (p PDPContext) appendParams(dst []byte) ([]byte, error) {
	if p.Type < 0 || p.Type >= numPDPTypes {
		return nil, fmt.Errorf("%w: PDP type %d", ErrInvalidParams, p.Type)
	}
	if err := checkQuotable(p.APN); err != nil {
		return nil, err
	}
	dst = appendInts(dst, p.CID)
	dst = append(dst, ',')
	dst = appendQuoted(dst, pdpTypes[p.Type])
	dst = append(dst, ',')
	return appendQuoted(dst, p.APN), nil
}

func (p Registration) appendParams(dst []byte) ([]byte, error) {
	return appendInts(dst, int(p.Mode)), nil
}

func (p NetworkTime) appendParams(dst []byte) ([]byte, error) {
	return appendInts(dst, int(p.Mode)), nil
}

func (p Ping) appendParams(dst []byte) ([]byte, error) {
	if p.Host == "" {
		return nil, fmt.Errorf("%w: empty ping host", ErrInvalidParams)
	}
	if err := checkQuotable(p.Host); err != nil {
		return nil, err
	}
	dst = appendInts(dst, p.ContextID)
	dst = append(dst, ',')
	return appendQuoted(dst, p.Host), nil
}

func (p HTTPConfig) appendParams(dst []byte) ([]byte, error) {
	if p.Key < 0 || p.Key >= numHTTPConfigKeys {
		return nil, fmt.Errorf("%w: HTTP config key %d", ErrInvalidParams, p.Key)
	}
	dst = appendQuoted(dst, httpConfigKeys[p.Key])
	dst = append(dst, ',')
	return appendInts(dst, p.Value), nil
}

func (p HTTPURL) appendParams(dst []byte) ([]byte, error) {
	return appendInts(dst, p.Length, p.Timeout), nil
}

func (p HTTPPost) appendParams(dst []byte) ([]byte, error) {
	return appendInts(dst, p.BodySize, p.InputTimeout, p.ResponseTimeout), nil
}

func (p HTTPPut) appendParams(dst []byte) ([]byte, error) {
	return HTTPPost(p).appendParams(dst)
}

func (p HTTPGet) appendParams(dst []byte) ([]byte, error) {
	return appendInts(dst, p.Timeout), nil
}

func (p HTTPRead) appendParams(dst []byte) ([]byte, error) {
	return appendInts(dst, p.Timeout), nil
}

// appendInts writes the values comma separated.
func appendInts(dst []byte, values ...int) []byte {
	for i, v := range values {
		if i > 0 {
			dst = append(dst, ',')
		}
		dst = strconv.AppendInt(dst, int64(v), 10)
	}
	return dst
}

func appendQuoted(dst []byte, s string) []byte {
	dst = append(dst, '"')
	dst = append(dst, s...)
	return append(dst, '"')
}

// checkQuotable rejects strings that would terminate the quoted value or the
// command line early.
func checkQuotable(s string) error {
	if strings.ContainsAny(s, "\"\r\n") {
		return fmt.Errorf("%w: %q cannot be quoted", ErrInvalidParams, s)
	}
	return nil
}
