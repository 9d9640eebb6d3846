// Package schema exposes the catalog as a read-only GraphQL API.
package schema

import (
	"fmt"
	"time"

	gql "github.com/graphql-go/graphql"

	"github.com/shashiranjanraj/bunkar/app/controllers"
	"github.com/shashiranjanraj/bunkar/app/models"
	"github.com/shashiranjanraj/bunkar/app/resources"
	"github.com/shashiranjanraj/bunkar/app/services"
	"github.com/shashiranjanraj/bunkar/pkg/graphql"
	"github.com/shashiranjanraj/bunkar/pkg/resource"
	"github.com/shashiranjanraj/bunkar/pkg/storage"
)

var productType = gql.NewObject(gql.ObjectConfig{
	Name: "Product",
	Fields: gql.Fields{
		"id":           &gql.Field{Type: gql.NewNonNull(gql.ID)},
		"name":         &gql.Field{Type: gql.NewNonNull(gql.String)},
		"description":  &gql.Field{Type: gql.String},
		"price":        &gql.Field{Type: gql.NewNonNull(gql.String)},
		"fabric_type":  &gql.Field{Type: gql.NewNonNull(gql.String)},
		"fabric_count": &gql.Field{Type: gql.Int},
		"stock":        &gql.Field{Type: gql.NewNonNull(gql.Int)},
		"in_stock":     &gql.Field{Type: gql.NewNonNull(gql.Boolean)},
		"featured":     &gql.Field{Type: gql.NewNonNull(gql.Boolean)},
		"images":       &gql.Field{Type: gql.NewList(gql.String)},
		"created_at":   &gql.Field{Type: gql.String},
	},
})

// toGraph flattens the REST shape into scalars graphql-go serializes
// without reflection surprises.
func toGraph(p models.Product) resource.Map {
	m := resources.Product{Disk: storage.Default()}.ToArray(p)
	m["fabric_type"] = string(p.FabricType)
	m["created_at"] = p.CreatedAt.UTC().Format(time.RFC3339)
	return m
}

func argGetter(args map[string]any) func(string) string {
	return func(key string) string {
		v, ok := args[key]
		if !ok || v == nil {
			return ""
		}
		return fmt.Sprint(v)
	}
}

// Catalog builds the query root over the catalog service.
func Catalog(catalog *services.CatalogService) (gql.Schema, error) {
	query := gql.NewObject(gql.ObjectConfig{
		Name: "Query",
		Fields: gql.Fields{
			"products": &gql.Field{
				Type: gql.NewList(productType),
				Args: gql.FieldConfigArgument{
					"fabric_type":  &gql.ArgumentConfig{Type: gql.String},
					"fabric_count": &gql.ArgumentConfig{Type: gql.Int},
					"min_price":    &gql.ArgumentConfig{Type: gql.String},
					"max_price":    &gql.ArgumentConfig{Type: gql.String},
					"featured":     &gql.ArgumentConfig{Type: gql.Boolean},
					"q":            &gql.ArgumentConfig{Type: gql.String},
				},
				Resolve: func(p gql.ResolveParams) (any, error) {
					filter, errs := controllers.ParseProductFilter(argGetter(p.Args))
					if len(errs) > 0 {
						return nil, &services.ValidationError{Fields: errs}
					}
					products, err := catalog.List(p.Context, filter)
					if err != nil {
						_, msg := controllers.StatusFor(err)
						return nil, fmt.Errorf("%s", msg)
					}
					out := make([]resource.Map, 0, len(products))
					for _, prod := range products {
						out = append(out, toGraph(prod))
					}
					return out, nil
				},
			},
			"product": &gql.Field{
				Type: productType,
				Args: gql.FieldConfigArgument{
					"id": &gql.ArgumentConfig{Type: gql.NewNonNull(gql.ID)},
				},
				Resolve: func(p gql.ResolveParams) (any, error) {
					id, _ := p.Args["id"].(string)
					prod, err := catalog.Get(p.Context, id)
					if err != nil {
						_, msg := controllers.StatusFor(err)
						return nil, fmt.Errorf("%s", msg)
					}
					return toGraph(*prod), nil
				},
			},
			"fabric_types": &gql.Field{
				Type: gql.NewList(gql.String),
				Resolve: func(gql.ResolveParams) (any, error) {
					out := make([]string, 0, len(models.FabricTypes))
					for _, f := range models.FabricTypes {
						out = append(out, string(f))
					}
					return out, nil
				},
			},
		},
	})
	return graphql.NewSchema(query)
}
