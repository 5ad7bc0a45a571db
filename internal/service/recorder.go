package service

// Close reasons reported to the Recorder and in logs.
const (
	ReasonDisconnect = "disconnect"
	ReasonExpired    = "expired"
	ReasonSendFailed = "send_failed"
	ReasonSlowClient = "slow_client"
	ReasonShutdown   = "shutdown"
	ReasonLogFailure = "log_failure"
)

// Recorder receives broadcaster measurements. Implementations must be safe
// for concurrent use.
type Recorder interface {
	SessionOpened()
	SessionClosed(reason string)
	EventDelivered(topic string)
	EventFiltered(topic string)
	HeartbeatSent()
}

type nopRecorder struct{}

func (nopRecorder) SessionOpened()        {}
func (nopRecorder) SessionClosed(string)  {}
func (nopRecorder) EventDelivered(string) {}
func (nopRecorder) EventFiltered(string)  {}
func (nopRecorder) HeartbeatSent()        {}
