package topology

// EntityType identifies the kind of a topology entity
type EntityType string

const (
	EntityDevice    EntityType = "device"
	EntityLink      EntityType = "link"
	EntityMetro     EntityType = "metro"
	EntityValidator EntityType = "validator"
)

// Valid reports whether t is one of the known entity types
func (t EntityType) Valid() bool {
	switch t {
	case EntityDevice, EntityLink, EntityMetro, EntityValidator:
		return true
	}
	return false
}

// EntityRef identifies one entity by type and stable identifier
type EntityRef struct {
	Type EntityType `json:"type"`
	ID   string     `json:"id"`
}

// IsZero reports whether the reference is empty
func (r EntityRef) IsZero() bool {
	return r.Type == "" && r.ID == ""
}

// DeviceStatusActivated marks devices that participate in the path graph
const DeviceStatusActivated = "activated"

// Metro represents a metropolitan area grouping devices
type Metro struct {
	PK        string  `json:"pk"`
	Code      string  `json:"code"`
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Device represents a network device
type Device struct {
	PK              string  `json:"pk"`
	Code            string  `json:"code"`
	Status          string  `json:"status"`
	DeviceType      string  `json:"device_type"`
	MetroPK         string  `json:"metro_pk"`
	ContributorCode string  `json:"contributor_code,omitempty"`
	UserCount       int     `json:"user_count"`
	ValidatorCount  int     `json:"validator_count"`
	StakeSol        float64 `json:"stake_sol"`
	StakeShare      float64 `json:"stake_share"`
}

// PathEligible reports whether the device participates in the active path graph.
// Devices outside it are not valid path/addition input.
func (d *Device) PathEligible() bool {
	return d.Status == DeviceStatusActivated
}

// Link represents a connection between two devices
type Link struct {
	PK           string  `json:"pk"`
	Code         string  `json:"code"`
	Status       string  `json:"status"`
	LinkType     string  `json:"link_type"`
	BandwidthBps uint64  `json:"bandwidth_bps"`
	SideAPK      string  `json:"side_a_pk"`
	SideZPK      string  `json:"side_z_pk"`
	LatencyUs    float64 `json:"latency_us"`
	JitterUs     float64 `json:"jitter_us"`
	LossPercent  float64 `json:"loss_percent"`
	InBps        uint64  `json:"in_bps"`
	OutBps       uint64  `json:"out_bps"`
}

// Connects reports whether the link joins a and z in either orientation
func (l *Link) Connects(a, z string) bool {
	return (l.SideAPK == a && l.SideZPK == z) || (l.SideAPK == z && l.SideZPK == a)
}

// Validator represents a validator attached to a device
type Validator struct {
	VotePubkey string  `json:"vote_pubkey"`
	DevicePK   string  `json:"device_pk"`
	City       string  `json:"city,omitempty"`
	Country    string  `json:"country,omitempty"`
	StakeSol   float64 `json:"stake_sol"`
	StakeShare float64 `json:"stake_share"`
	Version    string  `json:"version,omitempty"`
}

// Snapshot is an immutable view of the known topology. Lookup maps are built
// once at construction; callers must not mutate the slices after NewSnapshot.
type Snapshot struct {
	Version    uint64      `json:"version"`
	Metros     []Metro     `json:"metros"`
	Devices    []Device    `json:"devices"`
	Links      []Link      `json:"links"`
	Validators []Validator `json:"validators"`

	devicesByPK   map[string]*Device
	linksByPK     map[string]*Link
	metrosByPK    map[string]*Metro
	validatorsByK map[string]*Validator
}

// NewSnapshot builds a snapshot and its lookup indexes
func NewSnapshot(metros []Metro, devices []Device, links []Link, validators []Validator) *Snapshot {
	s := &Snapshot{
		Metros:     metros,
		Devices:    devices,
		Links:      links,
		Validators: validators,

		devicesByPK:   make(map[string]*Device, len(devices)),
		linksByPK:     make(map[string]*Link, len(links)),
		metrosByPK:    make(map[string]*Metro, len(metros)),
		validatorsByK: make(map[string]*Validator, len(validators)),
	}
	for i := range devices {
		s.devicesByPK[devices[i].PK] = &devices[i]
	}
	for i := range links {
		s.linksByPK[links[i].PK] = &links[i]
	}
	for i := range metros {
		s.metrosByPK[metros[i].PK] = &metros[i]
	}
	for i := range validators {
		s.validatorsByK[validators[i].VotePubkey] = &validators[i]
	}
	return s
}

// DeviceByPK returns the device with the given identifier
func (s *Snapshot) DeviceByPK(pk string) (*Device, bool) {
	d, ok := s.devicesByPK[pk]
	return d, ok
}

// LinkByPK returns the link with the given identifier
func (s *Snapshot) LinkByPK(pk string) (*Link, bool) {
	l, ok := s.linksByPK[pk]
	return l, ok
}

// MetroByPK returns the metro with the given identifier
func (s *Snapshot) MetroByPK(pk string) (*Metro, bool) {
	m, ok := s.metrosByPK[pk]
	return m, ok
}

// ValidatorByKey returns the validator with the given vote pubkey
func (s *Snapshot) ValidatorByKey(key string) (*Validator, bool) {
	v, ok := s.validatorsByK[key]
	return v, ok
}

// LinkBetween returns the first link joining the two devices in either
// orientation
func (s *Snapshot) LinkBetween(a, z string) (*Link, bool) {
	for i := range s.Links {
		if s.Links[i].Connects(a, z) {
			return &s.Links[i], true
		}
	}
	return nil, false
}

// HasEntity reports whether the referenced entity exists in this snapshot
func (s *Snapshot) HasEntity(ref EntityRef) bool {
	switch ref.Type {
	case EntityDevice:
		_, ok := s.devicesByPK[ref.ID]
		return ok
	case EntityLink:
		_, ok := s.linksByPK[ref.ID]
		return ok
	case EntityMetro:
		_, ok := s.metrosByPK[ref.ID]
		return ok
	case EntityValidator:
		_, ok := s.validatorsByK[ref.ID]
		return ok
	}
	return false
}

// HasDevices reports whether every listed device identifier resolves
func (s *Snapshot) HasDevices(pks ...string) bool {
	for _, pk := range pks {
		if _, ok := s.devicesByPK[pk]; !ok {
			return false
		}
	}
	return true
}
