package backend

// Metric selects the path-finding objective
type Metric string

const (
	MetricHops    Metric = "hops"
	MetricLatency Metric = "latency"
)

// Valid reports whether m is a known metric
func (m Metric) Valid() bool {
	return m == MetricHops || m == MetricLatency
}

const (
	// DefaultMaxAlternates is the alternate-path count requested when the
	// caller does not specify one
	DefaultMaxAlternates = 5
	// MaxAlternates caps the alternate-path count accepted by the API
	MaxAlternates = 10
	// DefaultAdditionCost is the link metric assumed for a hypothetical
	// new link when the caller does not specify one
	DefaultAdditionCost uint32 = 1000
)

// Hop is one device visit within a path. Edge* fields describe the edge
// leading into this hop and are zero on the first hop.
type Hop struct {
	DevicePK       string  `json:"devicePK"`
	DeviceCode     string  `json:"deviceCode"`
	Status         string  `json:"status,omitempty"`
	DeviceType     string  `json:"deviceType,omitempty"`
	EdgeMetric     uint32  `json:"edgeMetric,omitempty"`
	EdgeMeasuredMs float64 `json:"edgeMeasuredMs,omitempty"`
}

// Path is one alternate route between the requested endpoints
type Path struct {
	Hops              []Hop   `json:"path"`
	TotalMetric       uint32  `json:"totalMetric"`
	HopCount          int     `json:"hopCount"`
	MeasuredLatencyMs float64 `json:"measuredLatencyMs,omitempty"`
}

// PathResult is the response to a path-finding request. Backend failures
// arrive in Error rather than as transport errors.
type PathResult struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Paths []Path `json:"paths"`
	Error string `json:"error,omitempty"`
}

// MetroHop is one device visit within a metro-level path
type MetroHop struct {
	DevicePK   string `json:"devicePK"`
	DeviceCode string `json:"deviceCode"`
	MetroPK    string `json:"metroPK"`
	MetroCode  string `json:"metroCode"`
}

// MetroPath is one alternate route between two metros
type MetroPath struct {
	Hops        []MetroHop `json:"hops"`
	TotalHops   int        `json:"totalHops"`
	TotalMetric int64      `json:"totalMetric"`
	LatencyMs   float64    `json:"latencyMs,omitempty"`
}

// MetroPathResult is the response to a metro path-finding request
type MetroPathResult struct {
	FromMetro string      `json:"fromMetroCode"`
	ToMetro   string      `json:"toMetroCode"`
	Paths     []MetroPath `json:"paths"`
	Error     string      `json:"error,omitempty"`
}

// ImpactDevice identifies a device cut off by a simulated failure
type ImpactDevice struct {
	DevicePK   string `json:"devicePK"`
	DeviceCode string `json:"deviceCode"`
	MetroCode  string `json:"metroCode,omitempty"`
}

// AffectedPath compares a device pair's route before and after a simulated
// change. Zero After values with HasAlternate false mean the pair became
// disconnected.
type AffectedPath struct {
	FromPK       string `json:"fromPK"`
	ToPK         string `json:"toPK"`
	BeforeHops   int    `json:"beforeHops"`
	AfterHops    int    `json:"afterHops"`
	BeforeMetric uint32 `json:"beforeMetric"`
	AfterMetric  uint32 `json:"afterMetric"`
	HasAlternate bool   `json:"hasAlternate"`
}

// RemovalResult is the response to a link-removal simulation
type RemovalResult struct {
	SourcePK            string         `json:"sourcePK"`
	TargetPK            string         `json:"targetPK"`
	DisconnectedDevices []ImpactDevice `json:"disconnectedDevices"`
	AffectedPaths       []AffectedPath `json:"affectedPaths"`
	CausesPartition     bool           `json:"causesPartition"`
	Error               string         `json:"error,omitempty"`
}

// ImprovedPath records a device pair whose route improves with a
// hypothetical link
type ImprovedPath struct {
	FromPK          string `json:"fromPK"`
	ToPK            string `json:"toPK"`
	BeforeHops      int    `json:"beforeHops"`
	AfterHops       int    `json:"afterHops"`
	HopReduction    int    `json:"hopReduction"`
	MetricReduction uint32 `json:"metricReduction"`
}

// RedundancyGain records a device whose degree increases with a
// hypothetical link
type RedundancyGain struct {
	DevicePK  string `json:"devicePK"`
	OldDegree int    `json:"oldDegree"`
	NewDegree int    `json:"newDegree"`
	WasLeaf   bool   `json:"wasLeaf"`
}

// AdditionResult is the response to a link-addition simulation
type AdditionResult struct {
	SourcePK        string           `json:"sourcePK"`
	TargetPK        string           `json:"targetPK"`
	Metric          uint32           `json:"metric"`
	ImprovedPaths   []ImprovedPath   `json:"improvedPaths"`
	RedundancyGains []RedundancyGain `json:"redundancyGains"`
	Error           string           `json:"error,omitempty"`
}

// Impact path status values
const (
	PathStatusRerouted     = "rerouted"
	PathStatusDegraded     = "degraded"
	PathStatusDisconnected = "disconnected"
)

// ImpactPath classifies how one device pair fares under a simulated
// multi-device failure
type ImpactPath struct {
	FromPK string `json:"fromPK"`
	ToPK   string `json:"toPK"`
	Status string `json:"status"`
}

// MetroImpact aggregates unreachable devices per metro
type MetroImpact struct {
	MetroCode   string `json:"metroCode"`
	Unreachable int    `json:"unreachable"`
}

// ImpactResult is the response to a multi-device failure simulation
type ImpactResult struct {
	DevicePKs          []string       `json:"devicePKs"`
	UnreachableDevices []ImpactDevice `json:"unreachableDevices"`
	AffectedPaths      []ImpactPath   `json:"affectedPaths"`
	MetroImpact        []MetroImpact  `json:"metroImpact"`
	Error              string         `json:"error,omitempty"`
}

// Criticality levels for links
const (
	CriticalityCritical  = "critical"
	CriticalityImportant = "important"
	CriticalityRedundant = "redundant"
)

// CriticalLink ranks one link's importance to overall connectivity
type CriticalLink struct {
	SourcePK    string `json:"sourcePK"`
	TargetPK    string `json:"targetPK"`
	Metric      uint32 `json:"metric"`
	Criticality string `json:"criticality"`
}

// CriticalLinksResult is the criticality overlay data source
type CriticalLinksResult struct {
	Links []CriticalLink `json:"links"`
	Error string         `json:"error,omitempty"`
}

// LinkHealth is one link's measured health
type LinkHealth struct {
	LinkPK      string  `json:"linkPK"`
	Status      string  `json:"status"`
	LatencyMs   float64 `json:"latencyMs"`
	JitterMs    float64 `json:"jitterMs"`
	LossPercent float64 `json:"lossPercent"`
}

// LinkHealthResult is the link-health overlay data source
type LinkHealthResult struct {
	Links []LinkHealth `json:"links"`
	Error string       `json:"error,omitempty"`
}
