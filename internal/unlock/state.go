package unlock

// State is a step of the negotiation state machine.
type State string

const (
	StateStart           State = "start"
	StateLoggedIn        State = "logged_in"
	StateDeviceAcquired  State = "device_acquired"
	StateSNResolved      State = "sn_resolved"
	StateAccessGranted   State = "access_granted"
	StateAdGated         State = "ad_gated"
	StatePollingManifest State = "polling_manifest"
	StateUnlocked        State = "unlocked"
	StateFailed          State = "failed"
)
