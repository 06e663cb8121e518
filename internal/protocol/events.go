package protocol

// Frontend channel requests.
const (
	RequestConfig      = "requestConfig"
	ReleaseConfig      = "releaseConfig"
	RefreshConfigLock  = "refreshConfigLock"
	KonfigStart        = "konfigStart"
	KonfigEnde         = "konfigEnde"
	KonfigReady        = "konfigReady"
	GetKonfigStatus    = "getKonfigStatus"
	SetSchwelle        = "setSchwelle"
	GetSchwelle        = "getSchwelle"
	GetTemperaturHisto = "getTemperaturHistogramm"
	LiveTemperatur     = "liveTemperatur"
)

// Frontend channel emissions.
const (
	LockConfigSuccess    = "lockConfigSuccess"
	LockConfigDenied     = "lockConfigDenied"
	LockReleased         = "lockReleased"
	LockReleasedDenied   = "lockReleasedDenied"
	LockFreed            = "lockFreed"
	LockTimeoutRefreshed = "lockTimeoutRefreshed"
	KonfigModusStart     = "konfigModusStart"
	KonfigModusEnde      = "konfigModusEnde"
	KonfigStatus         = "konfigStatus"
	Info                 = "info"
	Error                = "error"
	Schwelle             = "schwelle"
	SchwelleError        = "schwelleError"
	Temperatur           = "temperatur"
	TemperaturError      = "temperaturError"
	TemperaturHisto      = "temperaturHistogramm"
	TemperaturHistoError = "temperaturHistogrammError"
)

// Agent events that are logged and never relayed.
const (
	Disconnect   = "disconnect"
	ConnectError = "connect_error"
	ReqTest      = "REQ_TEST"
	AckConfig    = "ack_config"
)

// Reason codes carried in denial and error payloads.
const (
	ReasonInvalidPayload    = "invalid_payload"
	ReasonInvalidValue      = "invalid_value"
	ReasonAlreadyLocked     = "already_locked"
	ReasonNotLockOwner      = "not_lock_owner"
	ReasonDenied            = "denied"
	ReasonConfigModeBusy    = "config_mode_busy"
	ReasonIntegrityMismatch = "integrity_mismatch"
	ReasonTimeout           = "timeout"
	ReasonInternal          = "internal"
)

// Denial is the payload of lockConfigDenied and lockReleasedDenied.
type Denial struct {
	Reason string `json:"reason"`
	ID     string `json:"id,omitempty"`
}

// Failure is the payload of error, schwelleError, temperaturError and
// temperaturHistogrammError.
type Failure struct {
	Reason  string `json:"reason"`
	Message string `json:"error,omitempty"`
}

// LeaseRefreshed is the payload of lockTimeoutRefreshed.
type LeaseRefreshed struct {
	RemainingMs int64 `json:"remainingMs"`
}

// Fail builds a failure message for event.
func Fail(event, reason, message string) Message {
	return Message{Event: event, Data: Failure{Reason: reason, Message: message}}
}

// InfoText builds an informational message.
func InfoText(text string) Message {
	return Message{Event: Info, Data: text}
}
