package types

// VenueStatus is the reachability of the execution venue
type VenueStatus string

const (
	VenueOnline      VenueStatus = "online"
	VenueOffline     VenueStatus = "offline"
	VenueMaintenance VenueStatus = "maintenance"
	VenueUnknown     VenueStatus = "unknown"
)
