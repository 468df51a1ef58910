package graph

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/theory-cloud/cvsite/pkg/config"
)

const documentVersion = 1

// document is the synthesized, serialized form of a graph.
type document struct {
	Version int      `json:"version" yaml:"version"`
	Order   []string `json:"order" yaml:"order"`
	Graph   *Graph   `json:"graph" yaml:"graph"`
}

// Marshal renders g as indented JSON including its creation order.
func Marshal(g *Graph) ([]byte, error) {
	doc, err := newDocument(g)
	if err != nil {
		return nil, err
	}
	return json.MarshalIndent(doc, "", "  ")
}

// MarshalYAML renders g as YAML for human review.
func MarshalYAML(g *Graph) ([]byte, error) {
	doc, err := newDocument(g)
	if err != nil {
		return nil, err
	}
	return yaml.Marshal(doc)
}

// Unmarshal parses a document produced by Marshal and re-validates it: the dependency structure,
// the domain every domain-bearing node names, and the recorded creation order.
func Unmarshal(data []byte) (*Graph, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("graph: decode: %w", err)
	}
	if doc.Version != documentVersion {
		return nil, fmt.Errorf("graph: unsupported document version %d", doc.Version)
	}
	if doc.Graph == nil {
		return nil, fmt.Errorf("graph: document has no graph")
	}
	g := doc.Graph
	if err := (config.DomainConfig{Name: g.Domain}).Validate(); err != nil {
		return nil, err
	}
	for field, name := range map[string]string{
		"zone.zoneName":          g.Zone.ZoneName,
		"certificate.domainName": g.Certificate.DomainName,
		"record.recordName":      g.Record.RecordName,
		"delegation.domainName":  g.Delegation.DomainName,
	} {
		if name != g.Domain {
			return nil, fmt.Errorf("%w: %s is %q, domain is %q", ErrDocumentMismatch, field, name, g.Domain)
		}
	}

	if !slices.Contains(g.Distribution.DomainNames, g.Domain) {
		return nil, fmt.Errorf("%w: distribution does not serve %q", ErrDocumentMismatch, g.Domain)
	}

	order, err := g.Order()
	if err != nil {
		return nil, err
	}
	if !slices.Equal(order, doc.Order) {
		return nil, fmt.Errorf("%w: recorded order %v, computed %v", ErrDocumentMismatch, doc.Order, order)
	}
	return g, nil
}

func newDocument(g *Graph) (document, error) {
	order, err := g.Order()
	if err != nil {
		return document{}, err
	}
	return document{Version: documentVersion, Order: order, Graph: g}, nil
}

// Fingerprint is a content hash of a node or delegation used for drift detection.
func Fingerprint(v any) string {
	raw, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
