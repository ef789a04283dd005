package component

// Status is the lifecycle status of a component.
type Status int

const (
	// StatusStopped is both the initial status and the status after a
	// successful initialize or stop.
	StatusStopped Status = iota
	StatusInitializing
	StatusStarting
	StatusStarted
	StatusPausing
	StatusPaused
	StatusStopping
	// StatusError is entered when a lifecycle hook fails. The cause is
	// available through LastError.
	StatusError
)

// String returns a string representation of the status
func (s Status) String() string {
	switch s {
	case StatusStopped:
		return "stopped"
	case StatusInitializing:
		return "initializing"
	case StatusStarting:
		return "starting"
	case StatusStarted:
		return "started"
	case StatusPausing:
		return "pausing"
	case StatusPaused:
		return "paused"
	case StatusStopping:
		return "stopping"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// MarshalText renders the status by name in JSON and YAML output.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Type tags a component with the role it plays in the pipeline. It is used for
// hierarchy searches and metric labels.
type Type string

const (
	TypeServer                 Type = "server"
	TypeTenantEngine           Type = "tenant-engine"
	TypeEventSource            Type = "event-source"
	TypeInboundReceiver        Type = "inbound-event-receiver"
	TypeSocketHandlerFactory   Type = "socket-handler-factory"
	TypeDecoder                Type = "device-event-decoder"
	TypeMetadataExtractor      Type = "metadata-extractor"
	TypeInboundProcessorChain  Type = "inbound-processor-chain"
	TypeInboundProcessor       Type = "inbound-event-processor"
	TypeOutboundProcessorChain Type = "outbound-processor-chain"
	TypeOutboundProcessor      Type = "outbound-event-processor"
	TypeIdentityResolver       Type = "identity-resolver"
	TypeDataStore              Type = "data-store"
	TypeOther                  Type = "other"
)
