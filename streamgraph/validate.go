// Copyright 2026 The Dillinger Authors
// SPDX-License-Identifier: Apache-2.0

package streamgraph

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"
)

// Severity grades a validation issue.
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityBlocking Severity = "blocking"
)

// Status summarizes a validation result.
type Status string

const (
	StatusOK       Status = "ok"
	StatusWarning  Status = "warning"
	StatusBlocking Status = "blocking"
)

// Issue is one problem found in a graph.
type Issue struct {
	Severity Severity `json:"severity"`

	// NodeID and PortID identify the offending node input/output;
	// EdgeID identifies an offending edge as "from->to". Only the
	// fields relevant to the issue are set.
	NodeID string `json:"nodeId,omitempty"`
	PortID string `json:"portId,omitempty"`
	EdgeID string `json:"edgeId,omitempty"`

	Message    string `json:"message"`
	Suggestion string `json:"suggestion,omitempty"`
}

// Result is the outcome of validating one definition against one
// capability set.
type Result struct {
	Status Status  `json:"status"`
	Issues []Issue `json:"issues,omitempty"`
}

// Blocking reports whether the result forbids a streaming launch.
func (r Result) Blocking() bool { return r.Status == StatusBlocking }

// Validator validates pipeline definitions, caching results per
// definition/capability fingerprint so repeated launch checks of the
// same graph are free.
type Validator struct {
	mu    sync.Mutex
	cache map[string]Result
}

// NewValidator returns an empty validator.
func NewValidator() *Validator {
	return &Validator{cache: make(map[string]Result)}
}

// Validate checks the definition's structure and its capability
// requirements against the machine's available capability set.
func (v *Validator) Validate(definition *Definition, capabilities []string) Result {
	key := fingerprint(definition, capabilities)

	v.mu.Lock()
	if cached, ok := v.cache[key]; ok {
		v.mu.Unlock()
		return cached
	}
	v.mu.Unlock()

	result := validate(definition, capabilities)

	v.mu.Lock()
	v.cache[key] = result
	v.mu.Unlock()
	return result
}

// validate is the pure validation function. Checks run in a fixed
// order so issue lists are deterministic.
func validate(definition *Definition, capabilities []string) Result {
	available := make(map[string]bool, len(capabilities))
	for _, capability := range capabilities {
		available[capability] = true
	}

	var issues []Issue

	// Duplicate node ids make endpoint resolution ambiguous.
	seen := make(map[string]bool, len(definition.Nodes))
	for _, node := range definition.Nodes {
		if seen[node.ID] {
			issues = append(issues, Issue{
				Severity: SeverityBlocking,
				NodeID:   node.ID,
				Message:  fmt.Sprintf("duplicate node id %q", node.ID),
				Suggestion: "rename one of the nodes so every id is " +
					"unique",
			})
		}
		seen[node.ID] = true
	}

	// Edge endpoints must resolve to declared ports with matching
	// media types. connectedInputs records which inputs have at least
	// one valid incoming edge; connectedOutputs which outputs feed
	// anything.
	connectedInputs := make(map[string]bool)
	connectedOutputs := make(map[string]bool)
	for _, edge := range definition.Edges {
		edgeID := edge.From + "->" + edge.To

		fromNode, fromPort, issue := resolveEndpoint(definition, edge.From, edgeID, false)
		if issue != nil {
			issues = append(issues, *issue)
			continue
		}
		toNode, toPort, issue := resolveEndpoint(definition, edge.To, edgeID, true)
		if issue != nil {
			issues = append(issues, *issue)
			continue
		}

		if fromPort.Media != toPort.Media {
			issues = append(issues, Issue{
				Severity: SeverityBlocking,
				EdgeID:   edgeID,
				Message: fmt.Sprintf("media type mismatch: %s.%s is %s but %s.%s is %s",
					fromNode.ID, fromPort.Name, fromPort.Media,
					toNode.ID, toPort.Name, toPort.Media),
				Suggestion: "insert a converter node or fix the port media types",
			})
			continue
		}

		connectedInputs[toNode.ID+"."+toPort.Name] = true
		connectedOutputs[fromNode.ID+"."+fromPort.Name] = true
	}

	// Every required input must be connected; dangling outputs are
	// worth a warning but do not block.
	for _, node := range definition.Nodes {
		for _, port := range node.Inputs {
			if port.Optional || connectedInputs[node.ID+"."+port.Name] {
				continue
			}
			issues = append(issues, Issue{
				Severity: SeverityBlocking,
				NodeID:   node.ID,
				PortID:   port.Name,
				Message:  fmt.Sprintf("required input %s.%s (%s) is not connected", node.ID, port.Name, port.Media),
				Suggestion: fmt.Sprintf("add an edge ending at %q", node.ID+"."+port.Name),
			})
		}
		for _, port := range node.Outputs {
			if connectedOutputs[node.ID+"."+port.Name] {
				continue
			}
			issues = append(issues, Issue{
				Severity: SeverityWarning,
				NodeID:   node.ID,
				PortID:   port.Name,
				Message:  fmt.Sprintf("output %s.%s (%s) feeds nothing", node.ID, port.Name, port.Media),
			})
		}
	}

	// Capability preconditions: a node requiring an unavailable
	// capability cannot run here.
	for _, node := range definition.Nodes {
		for _, required := range node.Requires {
			if available[required] {
				continue
			}
			issues = append(issues, Issue{
				Severity:   SeverityBlocking,
				NodeID:     node.ID,
				Message:    fmt.Sprintf("node %s requires capability %q which is not available", node.ID, required),
				Suggestion: "install the missing driver/encoder or select a different graph",
			})
		}
	}

	return Result{Status: overallStatus(issues), Issues: issues}
}

// resolveEndpoint resolves "node.port" against the definition,
// checking output ports for edge sources and input ports for edge
// destinations. Returns an issue instead of a node/port on failure.
func resolveEndpoint(definition *Definition, endpoint, edgeID string, isInput bool) (*Node, *Port, *Issue) {
	direction := "output"
	if isInput {
		direction = "input"
	}

	nodeID, portName, ok := splitEndpoint(endpoint)
	if !ok {
		return nil, nil, &Issue{
			Severity:   SeverityBlocking,
			EdgeID:     edgeID,
			Message:    fmt.Sprintf("endpoint %q is not in node.port form", endpoint),
			Suggestion: "write endpoints as <nodeId>.<portName>",
		}
	}

	node := definition.node(nodeID)
	if node == nil {
		return nil, nil, &Issue{
			Severity: SeverityBlocking,
			EdgeID:   edgeID,
			Message:  fmt.Sprintf("endpoint %q references unknown node %q", endpoint, nodeID),
		}
	}

	ports := node.Outputs
	if isInput {
		ports = node.Inputs
	}
	port := findPort(ports, portName)
	if port == nil {
		return nil, nil, &Issue{
			Severity: SeverityBlocking,
			EdgeID:   edgeID,
			NodeID:   nodeID,
			PortID:   portName,
			Message:  fmt.Sprintf("node %q declares no %s port %q", nodeID, direction, portName),
		}
	}
	return node, port, nil
}

func overallStatus(issues []Issue) Status {
	status := StatusOK
	for _, issue := range issues {
		if issue.Severity == SeverityBlocking {
			return StatusBlocking
		}
		status = StatusWarning
	}
	return status
}

// fingerprint derives the cache key from the definition content and
// the sorted capability set.
func fingerprint(definition *Definition, capabilities []string) string {
	hash := sha256.New()
	fmt.Fprintf(hash, "%s\n", definition.Name)
	for _, node := range definition.Nodes {
		fmt.Fprintf(hash, "n:%s:%s:%v:%v:%v\n", node.ID, node.Type, node.Inputs, node.Outputs, node.Requires)
	}
	for _, edge := range definition.Edges {
		fmt.Fprintf(hash, "e:%s:%s\n", edge.From, edge.To)
	}
	sorted := append([]string(nil), capabilities...)
	sort.Strings(sorted)
	for _, capability := range sorted {
		fmt.Fprintf(hash, "c:%s\n", capability)
	}
	return hex.EncodeToString(hash.Sum(nil))
}
