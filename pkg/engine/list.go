package engine

import (
	"context"

	"github.com/softfire/nfv-manager/pkg/nfvo"
)

// List returns the catalog entries as resource metadata. When owner is not
// empty it also returns the images, networks and flavors visible through
// the owner's vim instances.
func (m *Manager) List(ctx context.Context, owner string) ([]ResourceMetadata, error) {
	ctx = m.tel.WithContext(ctx)

	var resources []ResourceMetadata
	for _, id := range m.catalog.IDs() {
		entry, ok := m.catalog.Get(id)
		if !ok {
			continue
		}
		testbed, _ := CanonicalTestbed(entry.Testbed)
		resources = append(resources, ResourceMetadata{
			ResourceID:  id,
			Description: entry.Description,
			Cardinality: entry.Cardinality,
			NodeType:    entry.NodeType,
			Testbed:     testbed,
		})
	}

	if owner == "" {
		return resources, nil
	}

	client, err := m.session(ctx, owner)
	if err != nil {
		return nil, err
	}
	vimResources, err := client.VimResources(ctx)
	if err != nil {
		return nil, NewTransientError("failed to list vim resources", err).WithResource(owner)
	}

	for _, r := range vimResources {
		testbed, _ := CanonicalTestbed(r.Testbed)
		resources = append(resources, ResourceMetadata{
			ResourceID:  r.Name,
			Cardinality: -1,
			NodeType:    nodeType(r.Kind),
			Testbed:     testbed,
		})
	}
	return resources, nil
}

func nodeType(kind string) string {
	switch kind {
	case nfvo.ResourceImage:
		return NodeTypeImage
	case nfvo.ResourceNetwork:
		return NodeTypeNetwork
	case nfvo.ResourceFlavor:
		return NodeTypeFlavor
	default:
		return NodeTypeResource
	}
}
