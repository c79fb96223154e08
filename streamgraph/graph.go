// Copyright 2026 The Dillinger Authors
// SPDX-License-Identifier: Apache-2.0

// Package streamgraph validates the declarative media-pipeline
// description used by streaming launches: a node graph running from
// game launch through compositor and encoders to the streaming sink.
// The graph is never executed by dillinger itself — validation is a
// pre-flight gate that decides whether a streaming launch is allowed
// on this machine.
package streamgraph

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// MediaType labels what flows through a port.
type MediaType string

const (
	MediaVideoRaw     MediaType = "video/raw"
	MediaVideoEncoded MediaType = "video/encoded"
	MediaAudioRaw     MediaType = "audio/raw"
	MediaAudioEncoded MediaType = "audio/encoded"
	MediaControl      MediaType = "control"
)

// Port is one typed input or output on a node.
type Port struct {
	Name  string    `yaml:"name"`
	Media MediaType `yaml:"media"`

	// Optional inputs may be left unconnected without blocking a
	// launch (e.g. a microphone return channel).
	Optional bool `yaml:"optional,omitempty"`
}

// Node is one processing stage in the pipeline.
type Node struct {
	ID      string `yaml:"id"`
	Type    string `yaml:"type"`
	Inputs  []Port `yaml:"inputs,omitempty"`
	Outputs []Port `yaml:"outputs,omitempty"`

	// Requires lists capability names that must be present on the
	// machine for this node to run (e.g. "encoder/nvenc").
	Requires []string `yaml:"requires,omitempty"`
}

// Edge connects an output port to an input port. Endpoints use
// "node.port" notation.
type Edge struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

// Definition is a complete pipeline description.
type Definition struct {
	Name  string `yaml:"name"`
	Nodes []Node `yaml:"nodes"`
	Edges []Edge `yaml:"edges"`
}

// Parse reads a YAML pipeline definition.
func Parse(data []byte) (*Definition, error) {
	var definition Definition
	if err := yaml.Unmarshal(data, &definition); err != nil {
		return nil, fmt.Errorf("parsing streaming graph: %w", err)
	}
	if len(definition.Nodes) == 0 {
		return nil, fmt.Errorf("streaming graph %q has no nodes", definition.Name)
	}
	return &definition, nil
}

// node returns the node with the given id, or nil.
func (d *Definition) node(id string) *Node {
	for i := range d.Nodes {
		if d.Nodes[i].ID == id {
			return &d.Nodes[i]
		}
	}
	return nil
}

// splitEndpoint splits "node.port" into its parts.
func splitEndpoint(endpoint string) (nodeID, portName string, ok bool) {
	index := strings.LastIndex(endpoint, ".")
	if index <= 0 || index == len(endpoint)-1 {
		return "", "", false
	}
	return endpoint[:index], endpoint[index+1:], true
}

// findPort returns the named port from the slice, or nil.
func findPort(ports []Port, name string) *Port {
	for i := range ports {
		if ports[i].Name == name {
			return &ports[i]
		}
	}
	return nil
}

// Default returns the built-in game streaming pipeline: launch control
// into the runner, raw video through the compositor into the hardware
// encoder, raw audio into the audio encoder, both encoded streams into
// the streaming sink.
func Default(encoderCapability string) *Definition {
	return &Definition{
		Name: "game-stream",
		Nodes: []Node{
			{
				ID:      "launch",
				Type:    "launch",
				Outputs: []Port{{Name: "control", Media: MediaControl}},
			},
			{
				ID:     "runner",
				Type:   "runner",
				Inputs: []Port{{Name: "control", Media: MediaControl}},
				Outputs: []Port{
					{Name: "video", Media: MediaVideoRaw},
					{Name: "audio", Media: MediaAudioRaw},
				},
			},
			{
				ID:      "compositor",
				Type:    "compositor",
				Inputs:  []Port{{Name: "video", Media: MediaVideoRaw}},
				Outputs: []Port{{Name: "frames", Media: MediaVideoRaw}},
			},
			{
				ID:       "video-encoder",
				Type:     "video-encoder",
				Inputs:   []Port{{Name: "frames", Media: MediaVideoRaw}},
				Outputs:  []Port{{Name: "stream", Media: MediaVideoEncoded}},
				Requires: []string{encoderCapability},
			},
			{
				ID:      "audio-encoder",
				Type:    "audio-encoder",
				Inputs:  []Port{{Name: "audio", Media: MediaAudioRaw}},
				Outputs: []Port{{Name: "stream", Media: MediaAudioEncoded}},
			},
			{
				ID:   "sink",
				Type: "stream-sink",
				Inputs: []Port{
					{Name: "video", Media: MediaVideoEncoded},
					{Name: "audio", Media: MediaAudioEncoded},
				},
			},
		},
		Edges: []Edge{
			{From: "launch.control", To: "runner.control"},
			{From: "runner.video", To: "compositor.video"},
			{From: "runner.audio", To: "audio-encoder.audio"},
			{From: "compositor.frames", To: "video-encoder.frames"},
			{From: "video-encoder.stream", To: "sink.video"},
			{From: "audio-encoder.stream", To: "sink.audio"},
		},
	}
}
