package gateway

import "strconv"

// State is the position of the gateway in the bootstrap and connect flows.
type State int

const (
	StateStart State = iota
	StateModemInitialized
	StateModemTested
	StateSimIdentified
	StateTimeZoneConfigured
	StateAutoUpdateConfigured
	StateScanSequenceConfigured
	StateScanModeConfigured
	StateRatModeConfigured
	StatePdpContextDefined
	StateRegistrationEnabled
	StateRegistrationPolling
	StateRegistered
	StateCarrierQueried
	StateSignalQueried
	StateTimeSynced

	StateUrlConfigured
	StateClientTokenObtained
	StateGatewayPut
	StateDeviceCodesObtained
	StateGatewayRegistered
	StatePollingGrant
	StateAuthenticated

	StateRefreshRequested
	StateRefreshApplied

	numStates
)

var stateNames = [numStates]string{
	StateStart:                  "Start",
	StateModemInitialized:       "ModemInitialized",
	StateModemTested:            "ModemTested",
	StateSimIdentified:          "SimIdentified",
	StateTimeZoneConfigured:     "TimeZoneConfigured",
	StateAutoUpdateConfigured:   "AutoUpdateConfigured",
	StateScanSequenceConfigured: "ScanSequenceConfigured",
	StateScanModeConfigured:     "ScanModeConfigured",
	StateRatModeConfigured:      "RatModeConfigured",
	StatePdpContextDefined:      "PdpContextDefined",
	StateRegistrationEnabled:    "RegistrationEnabled",
	StateRegistrationPolling:    "RegistrationPolling",
	StateRegistered:             "Registered",
	StateCarrierQueried:         "CarrierQueried",
	StateSignalQueried:          "SignalQueried",
	StateTimeSynced:             "TimeSynced",
	StateUrlConfigured:          "UrlConfigured",
	StateClientTokenObtained:    "ClientTokenObtained",
	StateGatewayPut:             "GatewayPut",
	StateDeviceCodesObtained:    "DeviceCodesObtained",
	StateGatewayRegistered:      "GatewayRegistered",
	StatePollingGrant:           "PollingGrant",
	StateAuthenticated:          "Authenticated",
	StateRefreshRequested:       "RefreshRequested",
	StateRefreshApplied:         "RefreshApplied",
}

func (s State) String() string {
	if s < 0 || s >= numStates {
		return "State(" + strconv.Itoa(int(s)) + ")"
	}
	return stateNames[s]
}

// Bootstrapped reports whether the network bootstrap has completed.
func (s State) Bootstrapped() bool {
	return s >= StateTimeSynced
}

// Authenticated reports whether access credentials have been obtained.
func (s State) Authenticated() bool {
	return s >= StateAuthenticated
}
