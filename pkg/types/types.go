package types

import "time"

// TargetType identifies what kind of identity a Target owns.
type TargetType string

const (
	TargetTypeDomain TargetType = "domain"
	TargetTypeIP     TargetType = "ip"
	TargetTypeCIDR   TargetType = "cidr"
)

// Target is the root entity that owns every asset discovered during scanning.
type Target struct {
	ID        string
	Name      string
	Type      TargetType
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time
}

// Organization is an optional many-to-many grouping over Targets.
type Organization struct {
	ID        string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time
}

// ScanEngine is a named, opaque configuration bundle consumed by the pipeline.
type ScanEngine struct {
	ID        string
	Name      string
	Config    string // opaque text payload, interpreted by pkg/pipeline
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ScanStatus is the Scan state machine from spec.md §3.
type ScanStatus string

const (
	ScanStatusInitiated ScanStatus = "initiated"
	ScanStatusRunning   ScanStatus = "running"
	ScanStatusCompleted ScanStatus = "completed"
	ScanStatusFailed    ScanStatus = "failed"
	ScanStatusCancelled ScanStatus = "cancelled"
)

// Scan represents one execution of the scan pipeline against one Target.
type Scan struct {
	ID             string
	TargetID       string
	ScanEngineID   string
	WorkerID       string
	Status         ScanStatus
	Progress       int // 0-100
	CurrentStage   string
	ContainerIDs   []string
	SubdomainCount int
	EndpointCount  int
	VulnCount      int
	StartedAt      *time.Time
	FinishedAt     *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
	DeletedAt      *time.Time
}

// WorkerStatus is the WorkerNode state machine from spec.md §4.3.
type WorkerStatus string

const (
	WorkerStatusPending   WorkerStatus = "pending"
	WorkerStatusDeploying WorkerStatus = "deploying"
	WorkerStatusOnline    WorkerStatus = "online"
	WorkerStatusOffline   WorkerStatus = "offline"
	WorkerStatusUpdating  WorkerStatus = "updating"
	WorkerStatusOutdated  WorkerStatus = "outdated"
)

// WorkerNode is a node capable of executing scans.
type WorkerNode struct {
	ID           string
	Name         string // globally unique
	IsLocal      bool
	IPAddress    string // unique among remote workers; local workers may share 127.0.0.1
	SSHUser      string
	SSHPassword  string
	SSHPort      int
	Status       WorkerStatus
	AgentVersion string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Telemetry is the ephemeral per-worker load sample held by the Load Registry.
type Telemetry struct {
	WorkerID   string
	CPUPercent float64
	MemPercent float64
	LastSeen   time.Time
}

// Subdomain is a pure presence record: unique (target, name), no other metadata.
type Subdomain struct {
	ID           string
	TargetID     string
	Name         string
	DiscoveredAt time.Time
}

// TechFingerprint is a single detected technology/version pair.
type TechFingerprint struct {
	Name    string
	Version string
}

// HTTPAsset carries the fields shared by Endpoint and Website.
type HTTPAsset struct {
	ID              string
	TargetID        string
	URL             string
	Host            string
	Title           string
	Webserver       string
	StatusCode      int
	ContentLength   int64
	ContentType     string
	Tech            []string
	BodyPreview     string
	Location        string
	VHost           bool
	TechFingerprint []TechFingerprint
	DiscoveredAt    time.Time
	UpdatedAt       time.Time
}

// Endpoint is an HTTP-reachable resource discovered from url_fetch/site_scan stages.
type Endpoint struct {
	HTTPAsset
	MatchedGFPatterns []string
}

// Website is an HTTP-reachable resource discovered from the site_scan stage.
type Website struct {
	HTTPAsset
}

// Directory is a brute-forced or crawled path under a Website.
type Directory struct {
	ID            string
	WebsiteID     string
	TargetID      string
	URL           string
	StatusCode    int
	ContentLength int64
	ContentType   string
	Words         int
	Lines         int
	DurationNS    int64
	DiscoveredAt  time.Time
	UpdatedAt     time.Time
}

// HostPortMapping is a pure presence record: unique (target, host, ip, port).
type HostPortMapping struct {
	ID           string
	TargetID     string
	Host         string
	IP           string
	Port         int // 1-65535
	DiscoveredAt time.Time
}

// VulnSeverity is the closed set of Vulnerability severities.
type VulnSeverity string

const (
	SeverityUnknown  VulnSeverity = "unknown"
	SeverityInfo     VulnSeverity = "info"
	SeverityLow      VulnSeverity = "low"
	SeverityMedium   VulnSeverity = "medium"
	SeverityHigh     VulnSeverity = "high"
	SeverityCritical VulnSeverity = "critical"
)

// Vulnerability is append-only: every finding is a new row, never upserted.
type Vulnerability struct {
	ID           string
	TargetID     string
	URL          string
	VulnType     string
	Severity     VulnSeverity
	Source       string
	CVSS         *float64 // 0.0-10.0 when non-nil
	RawOutput    []byte   // opaque structured payload (JSON)
	DiscoveredAt time.Time
}

// Snapshot entities carry a ScanID reference and are append-only per scan.

type SubdomainSnapshot struct {
	ID         string
	ScanID     string
	TargetID   string
	Name       string
	RecordedAt time.Time
}

type EndpointSnapshot struct {
	HTTPAsset
	ScanID            string
	MatchedGFPatterns []string
}

type WebsiteSnapshot struct {
	HTTPAsset
	ScanID string
}

type DirectorySnapshot struct {
	ID            string
	ScanID        string
	WebsiteID     string
	TargetID      string
	URL           string
	StatusCode    int
	ContentLength int64
	ContentType   string
	Words         int
	Lines         int
	DurationNS    int64
	RecordedAt    time.Time
}

type HostPortMappingSnapshot struct {
	ID         string
	ScanID     string
	TargetID   string
	Host       string
	IP         string
	Port       int
	RecordedAt time.Time
}

type VulnerabilitySnapshot struct {
	ID         string
	ScanID     string
	TargetID   string
	URL        string
	VulnType   string
	Severity   VulnSeverity
	Source     string
	CVSS       *float64
	RawOutput  []byte
	RecordedAt time.Time
}

// Stage names the fixed execution-graph phases (spec.md §4.6).
type Stage string

const (
	StageSubdomainDiscovery Stage = "subdomain_discovery"
	StagePortScan           Stage = "port_scan"
	StageSiteScan           Stage = "site_scan"
	StageDirectoryScan      Stage = "directory_scan"
	StageURLFetch           Stage = "url_fetch"
	StageVulnScan           Stage = "vuln_scan"
)
