package hub

import (
	"cmp"
	"context"
	"strings"

	"futurehub/internal/model"
)

// ResourceRepository keeps each user's inventory of named resources.
type ResourceRepository struct {
	resources *Collection[model.Resource]
	appID     string
}

// NewResourceRepository creates a repository for appID.
func NewResourceRepository(store RemoteStore, appID string, logger Logger) *ResourceRepository {
	return &ResourceRepository{
		resources: NewCollection(store, CollectionConfig[model.Resource]{
			Name:     ResourcesCollection,
			Decode:   decodeResource,
			Compare:  compareResources,
			Validate: validateResource,
		}, logger),
		appID: appID,
	}
}

// Open opens userID's resources. An empty userID closes the mirror.
func (r *ResourceRepository) Open(ctx context.Context, userID string) error {
	return r.resources.Open(ctx, UserCollectionPath(r.appID, userID, ResourcesCollection))
}

// Close releases the subscription.
func (r *ResourceRepository) Close() {
	r.resources.Close()
}

// Collection exposes the underlying mirror.
func (r *ResourceRepository) Collection() *Collection[model.Resource] {
	return r.resources
}

// Resources returns the mirror sorted by name.
func (r *ResourceRepository) Resources() []model.Resource {
	return r.resources.Items()
}

// Create adds a resource and returns its id.
func (r *ResourceRepository) Create(ctx context.Context, name, description string, quantity int64) (string, error) {
	return r.resources.Create(ctx, resourceFields(name, description, quantity))
}

// Update replaces name, description and quantity of an existing resource.
func (r *ResourceRepository) Update(ctx context.Context, id, name, description string, quantity int64) error {
	if id == "" {
		return &ValidationError{Field: "id", Reason: "id is required for update"}
	}
	fields := resourceFields(name, description, quantity)
	if err := validateResource(fields); err != nil {
		return err
	}
	fields["updatedAt"] = ServerTimestamp
	return r.resources.Update(ctx, id, fields)
}

// Delete removes a resource.
func (r *ResourceRepository) Delete(ctx context.Context, id string) error {
	return r.resources.Delete(ctx, id)
}

func resourceFields(name, description string, quantity int64) map[string]any {
	return map[string]any{
		"name":        strings.TrimSpace(name),
		"description": strings.TrimSpace(description),
		"quantity":    quantity,
	}
}

func validateResource(fields map[string]any) error {
	name, _ := fields["name"].(string)
	q, ok := fields["quantity"].(int64)
	if name == "" || !ok || q < 0 {
		return &ValidationError{Field: "resource", Reason: "name and a non-negative quantity are required"}
	}
	return nil
}

func decodeResource(doc Document) (model.Resource, error) {
	var res model.Resource
	if err := requireString(doc.Fields, "name"); err != nil {
		return res, err
	}
	if err := requireNumber(doc.Fields, "quantity"); err != nil {
		return res, err
	}
	if err := decodeFields(doc.Fields, &res); err != nil {
		return res, err
	}
	res.ID = doc.ID
	return res, nil
}

func compareResources(a, b model.Resource) int {
	if c := strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name)); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}
