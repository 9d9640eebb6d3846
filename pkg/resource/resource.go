// Package resource shapes models into API payloads.
//
//	type ProductResource struct{ Disk storage.Disk }
//	func (r ProductResource) ToArray(p models.Product) resource.Map {
//	    return resource.Map{"id": p.ID, "name": p.Name}
//	}
//
//	c.Success(resource.One(ProductResource{}, product))
//	c.Success(resource.Many(ProductResource{}, products))
package resource

import "github.com/shashiranjanraj/bunkar/pkg/collection"

// Map is the output of a transformer.
type Map = map[string]any

// Transformer turns one value into its public shape.
type Transformer[T any] interface {
	ToArray(v T) Map
}

// Func adapts a plain function to Transformer.
type Func[T any] func(v T) Map

func (f Func[T]) ToArray(v T) Map { return f(v) }

// One transforms a single value.
func One[T any](t Transformer[T], v T) Map {
	return t.ToArray(v)
}

// Many transforms a slice. A nil slice becomes an empty list so it encodes
// as [] rather than null.
func Many[T any](t Transformer[T], vs []T) []Map {
	if len(vs) == 0 {
		return []Map{}
	}
	return collection.Map(vs, t.ToArray)
}

// WithMeta wraps data and meta into one payload.
func WithMeta(data any, meta Map) Map {
	return Map{"items": data, "meta": meta}
}
