package graph

// Kind identifies the type of a resource node.
type Kind string

const (
	KindHostedZone           Kind = "hosted_zone"
	KindCertificate          Kind = "certificate"
	KindStorageBucket        Kind = "storage_bucket"
	KindOriginAccessIdentity Kind = "origin_access_identity"
	KindWebACL               Kind = "web_acl"
	KindDistribution         Kind = "distribution"
	KindBucketDeployment     Kind = "bucket_deployment"
	KindRecordSet            Kind = "record_set"
	KindDelegation           Kind = "nameserver_delegation"
)

// Logical IDs are stable across runs; the provisioning engine keys resources on them.
const (
	IDZone         = "Zone"
	IDCertificate  = "SiteCertificate"
	IDBucket       = "Bucket"
	IDIdentity     = "OIA"
	IDWebACL       = "WebACL"
	IDDistribution = "MyDistribution"
	IDDeployment   = "DeployWebsite"
	IDRecord       = "RecordSet"
	IDDelegation   = "UpdateNameServers"
)

// DelegationToken is the fixed physical resource id of the nameserver delegation call.
const DelegationToken = "Update domain name servers of domain"

// Node is one resource in the graph.
type Node interface {
	LogicalID() string
	Kind() Kind
	Dependencies() []string
}

// Meta carries the identity and explicit dependencies shared by every node.
type Meta struct {
	ID        string   `json:"id" yaml:"id"`
	DependsOn []string `json:"dependsOn,omitempty" yaml:"dependsOn,omitempty"`
}

func (m Meta) LogicalID() string { return m.ID }

func (m Meta) Dependencies() []string {
	return append([]string(nil), m.DependsOn...)
}

type HostedZone struct {
	Meta     `yaml:",inline"`
	ZoneName string `json:"zoneName" yaml:"zoneName"`
}

func (HostedZone) Kind() Kind { return KindHostedZone }

// Certificate is validated through a DNS challenge in ValidationZone.
type Certificate struct {
	Meta           `yaml:",inline"`
	DomainName     string `json:"domainName" yaml:"domainName"`
	ValidationZone string `json:"validationZone" yaml:"validationZone"`
	Validation     string `json:"validation" yaml:"validation"`
}

func (Certificate) Kind() Kind { return KindCertificate }

type StorageBucket struct {
	Meta              `yaml:",inline"`
	Versioned         bool   `json:"versioned" yaml:"versioned"`
	Encryption        string `json:"encryption" yaml:"encryption"`
	BlockPublicAccess bool   `json:"blockPublicAccess" yaml:"blockPublicAccess"`
	AutoDeleteObjects bool   `json:"autoDeleteObjects" yaml:"autoDeleteObjects"`
	RemovalPolicy     string `json:"removalPolicy" yaml:"removalPolicy"`
}

func (StorageBucket) Kind() Kind { return KindStorageBucket }

// OriginAccessIdentity is granted read on Bucket so the CDN can serve a private bucket.
type OriginAccessIdentity struct {
	Meta   `yaml:",inline"`
	Bucket string `json:"bucket" yaml:"bucket"`
	Grant  string `json:"grant" yaml:"grant"`
}

func (OriginAccessIdentity) Kind() Kind { return KindOriginAccessIdentity }

type ManagedRule struct {
	Name     string `json:"name" yaml:"name"`
	Vendor   string `json:"vendor" yaml:"vendor"`
	Priority int    `json:"priority" yaml:"priority"`
}

// MetricName is the CloudWatch metric name used for the rule's visibility config.
func (r ManagedRule) MetricName() string {
	return r.Vendor + "-" + r.Name
}

type WebACL struct {
	Meta          `yaml:",inline"`
	Scope         string        `json:"scope" yaml:"scope"`
	DefaultAction string        `json:"defaultAction" yaml:"defaultAction"`
	MetricName    string        `json:"metricName" yaml:"metricName"`
	Rules         []ManagedRule `json:"rules" yaml:"rules"`
}

func (WebACL) Kind() Kind { return KindWebACL }

type Distribution struct {
	Meta                 `yaml:",inline"`
	DomainNames          []string `json:"domainNames" yaml:"domainNames"`
	Certificate          string   `json:"certificate" yaml:"certificate"`
	Origin               string   `json:"origin" yaml:"origin"`
	OriginAccessIdentity string   `json:"originAccessIdentity" yaml:"originAccessIdentity"`
	WebACL               string   `json:"webAcl,omitempty" yaml:"webAcl,omitempty"`
	ViewerProtocolPolicy string   `json:"viewerProtocolPolicy" yaml:"viewerProtocolPolicy"`
	AllowedMethods       []string `json:"allowedMethods" yaml:"allowedMethods"`
	CachedMethods        []string `json:"cachedMethods" yaml:"cachedMethods"`
	CachePolicy          string   `json:"cachePolicy" yaml:"cachePolicy"`
	Compress             bool     `json:"compress" yaml:"compress"`
	DefaultRootObject    string   `json:"defaultRootObject" yaml:"defaultRootObject"`
	PriceClass           string   `json:"priceClass" yaml:"priceClass"`
	HTTPVersion          string   `json:"httpVersion" yaml:"httpVersion"`
}

func (Distribution) Kind() Kind { return KindDistribution }

// BucketDeployment uploads SourceDir to Bucket and invalidates InvalidationPaths on Distribution.
type BucketDeployment struct {
	Meta              `yaml:",inline"`
	SourceDir         string   `json:"sourceDir" yaml:"sourceDir"`
	Bucket            string   `json:"bucket" yaml:"bucket"`
	Distribution      string   `json:"distribution" yaml:"distribution"`
	InvalidationPaths []string `json:"invalidationPaths" yaml:"invalidationPaths"`
}

func (BucketDeployment) Kind() Kind { return KindBucketDeployment }

type RecordSet struct {
	Meta        `yaml:",inline"`
	Zone        string `json:"zone" yaml:"zone"`
	RecordName  string `json:"recordName" yaml:"recordName"`
	RecordType  string `json:"recordType" yaml:"recordType"`
	AliasTarget string `json:"aliasTarget" yaml:"aliasTarget"`
}

func (RecordSet) Kind() Kind { return KindRecordSet }

// Delegation points the registrar's nameservers at the hosted zone. It runs once, outside the
// node ordering, and is keyed by Token so re-applying the graph never repeats it.
type Delegation struct {
	ID              string `json:"id" yaml:"id"`
	Token           string `json:"token" yaml:"token"`
	DomainName      string `json:"domainName" yaml:"domainName"`
	Zone            string `json:"zone" yaml:"zone"`
	NameserverCount int    `json:"nameserverCount" yaml:"nameserverCount"`
	Service         string `json:"service" yaml:"service"`
	Action          string `json:"action" yaml:"action"`
	Region          string `json:"region" yaml:"region"`
}

// Key identifies the delegation for at-most-once bookkeeping.
func (d Delegation) Key() string {
	return d.DomainName + "#" + d.Token
}

// Graph is the declarative description of the site's infrastructure. A Graph returned by
// BuildSiteInfrastructure is treated as immutable; accessors return copies.
type Graph struct {
	Domain       string               `json:"domain" yaml:"domain"`
	Zone         HostedZone           `json:"zone" yaml:"zone"`
	Certificate  Certificate          `json:"certificate" yaml:"certificate"`
	Bucket       StorageBucket        `json:"bucket" yaml:"bucket"`
	Identity     OriginAccessIdentity `json:"identity" yaml:"identity"`
	WebACL       *WebACL              `json:"webAcl,omitempty" yaml:"webAcl,omitempty"`
	Distribution Distribution         `json:"distribution" yaml:"distribution"`
	Deployment   *BucketDeployment    `json:"deployment,omitempty" yaml:"deployment,omitempty"`
	Record       RecordSet            `json:"record" yaml:"record"`
	Delegation   Delegation           `json:"delegation" yaml:"delegation"`
}

// Nodes returns every resource in declaration order.
func (g *Graph) Nodes() []Node {
	if g == nil {
		return nil
	}
	nodes := []Node{g.Zone, g.Certificate, g.Bucket, g.Identity}
	if g.WebACL != nil {
		nodes = append(nodes, *g.WebACL)
	}
	nodes = append(nodes, g.Distribution)
	if g.Deployment != nil {
		nodes = append(nodes, *g.Deployment)
	}
	return append(nodes, g.Record)
}

// Node looks up a resource by logical ID.
func (g *Graph) Node(id string) (Node, bool) {
	for _, n := range g.Nodes() {
		if n.LogicalID() == id {
			return n, true
		}
	}
	return nil, false
}

// CountKind returns how many nodes of kind the graph holds.
func (g *Graph) CountKind(kind Kind) int {
	count := 0
	for _, n := range g.Nodes() {
		if n.Kind() == kind {
			count++
		}
	}
	return count
}
