// Package manifest provides YAML manifest parsing for Hostel resources.
package manifest

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/klubi/hostel/internal/compat"
	"github.com/klubi/hostel/pkg/apis/v1alpha1"
)

// ParseFile reads a YAML file at the given path and parses it into typed
// Hostel resources. Multi-document YAML (separated by ---) is supported.
func ParseFile(path string) ([]interface{}, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest file %s: %w", path, err)
	}
	return ParseBytes(data)
}

// ParseBytes parses raw YAML bytes into typed Hostel resources
// (*v1alpha1.Student or *v1alpha1.Room).
func ParseBytes(data []byte) ([]interface{}, error) {
	var resources []interface{}

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	for doc := 1; ; doc++ {
		// Decode into a generic yaml.Node so we can re-decode it.
		var node yaml.Node
		if err := decoder.Decode(&node); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("document %d: decoding yaml: %w", doc, err)
		}
		if node.Kind == 0 {
			continue
		}

		var meta v1alpha1.TypeMeta
		if err := node.Decode(&meta); err != nil {
			return nil, fmt.Errorf("document %d: decoding type meta: %w", doc, err)
		}
		if meta.Kind == "" && meta.APIVersion == "" {
			continue
		}
		if meta.APIVersion != "" && meta.APIVersion != v1alpha1.APIVersion {
			return nil, fmt.Errorf("document %d: unsupported apiVersion %q", doc, meta.APIVersion)
		}

		resource, err := decodeResource(&node, meta.Kind)
		if err != nil {
			return nil, fmt.Errorf("document %d: %w", doc, err)
		}
		if err := validateResource(resource); err != nil {
			return nil, fmt.Errorf("document %d: %w", doc, err)
		}
		resources = append(resources, resource)
	}

	return resources, nil
}

// decodeResource unmarshals a yaml.Node into the concrete type for kind and
// fills in the default APIVersion.
func decodeResource(node *yaml.Node, kind string) (interface{}, error) {
	switch kind {
	case v1alpha1.KindStudent:
		var r v1alpha1.Student
		if err := node.Decode(&r); err != nil {
			return nil, fmt.Errorf("decoding Student: %w", err)
		}
		r.APIVersion = v1alpha1.APIVersion
		return &r, nil

	case v1alpha1.KindRoom:
		var r v1alpha1.Room
		if err := node.Decode(&r); err != nil {
			return nil, fmt.Errorf("decoding Room: %w", err)
		}
		r.APIVersion = v1alpha1.APIVersion
		return &r, nil

	default:
		return nil, fmt.Errorf("unknown resource kind: %q", kind)
	}
}

// validateResource checks required fields and preference attribute names.
func validateResource(resource interface{}) error {
	switch r := resource.(type) {
	case *v1alpha1.Student:
		if r.Metadata.Name == "" {
			return fmt.Errorf("validation failed: Student name must not be empty")
		}
		if p := r.Spec.Preferences; p != nil {
			if unknown := compat.UnknownAttributes(p.Values); len(unknown) > 0 {
				return fmt.Errorf("validation failed: Student %s has unknown preference attributes %v", r.Metadata.Name, unknown)
			}
		}
	case *v1alpha1.Room:
		if r.Metadata.Name == "" {
			return fmt.Errorf("validation failed: Room name must not be empty")
		}
		if r.Spec.Capacity < 1 {
			return fmt.Errorf("validation failed: Room %s capacity must be at least 1", r.Metadata.Name)
		}
		switch r.Status.Phase {
		case "", v1alpha1.RoomAvailable, v1alpha1.RoomMaintenance:
		default:
			return fmt.Errorf("validation failed: Room %s has unknown phase %q", r.Metadata.Name, r.Status.Phase)
		}
	}
	return nil
}

// Marshal renders resources as a multi-document YAML manifest.
func Marshal(resources ...interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	for _, r := range resources {
		if err := enc.Encode(r); err != nil {
			return nil, fmt.Errorf("encoding manifest: %w", err)
		}
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encoding manifest: %w", err)
	}
	return buf.Bytes(), nil
}
