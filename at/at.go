package at

const (
	// Terminal Control
	CRLF = "\r\n"

	// Response Codes
	OK       = "OK"
	ERROR    = "ERROR"
	Connect  = "CONNECT"
	AppReady = "APP RDY"
	CmeError = "+CME ERROR:"
	CmsError = "+CMS ERROR:"

	// URCs (Unsolicited Result Codes)
	UrcTimeZone  = "+CTZE:"
	UrcPing      = "+QPING:"
	UrcPowerDown = "POWERED DOWN"
)

type ResponseType int

const (
	TypeFinal   ResponseType = iota // OK, ERROR
	TypeURC                         // Asynchronous notifications
	TypeData                        // Intermediate command output (+CSQ: ...)
	TypeConnect                     // Data input/output mode (CONNECT)
	TypeJSON                        // Tunnelled HTTP body line
)

func (t ResponseType) String() string {
	switch t {
	case TypeFinal:
		return "final"
	case TypeURC:
		return "urc"
	case TypeData:
		return "data"
	case TypeConnect:
		return "connect"
	case TypeJSON:
		return "json"
	default:
		return "unknown"
	}
}
