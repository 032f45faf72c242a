package httpapi

import (
	"github.com/getkin/kin-openapi/openapi3"
)

// OpenAPI describes the relay's public routes.
func OpenAPI() *openapi3.T {
	tokenSchema := openapi3.NewObjectSchema().
		WithProperty("accessToken", openapi3.NewStringSchema()).
		WithProperty("expiresIn", openapi3.NewInt32Schema().WithMin(0))
	tokenSchema.Required = []string{"accessToken", "expiresIn"}

	errorSchema := openapi3.NewObjectSchema().
		WithProperty("error", openapi3.NewStringSchema())
	errorSchema.Required = []string{"error"}

	failure := func(desc string) *openapi3.ResponseRef {
		return &openapi3.ResponseRef{Value: openapi3.NewResponse().WithDescription(desc).WithJSONSchema(errorSchema)}
	}

	return &openapi3.T{
		OpenAPI: "3.0.3",
		Info: &openapi3.Info{
			Title:       "modelviewer token relay",
			Description: "Exchanges the relay's service credentials for a short-lived viewer access token.",
			Version:     "v1",
		},
		Paths: openapi3.Paths{
			routeToken: &openapi3.PathItem{
				Get: &openapi3.Operation{
					OperationID: "GetToken",
					Summary:     "Obtain a fresh access token",
					Tags:        []string{"Token"},
					Responses: openapi3.Responses{
						"200": &openapi3.ResponseRef{Value: openapi3.NewResponse().
							WithDescription("A newly issued access token.").
							WithJSONSchema(tokenSchema)},
						"429":     failure("Client exceeded the relay's request rate."),
						"502":     failure("The authentication service could not be reached or answered unexpectedly."),
						"default": failure("The authentication service rejected the exchange; its status is propagated."),
					},
				},
			},
			routeHealth: &openapi3.PathItem{
				Get: &openapi3.Operation{
					OperationID: "GetHealth",
					Summary:     "Liveness probe",
					Tags:        []string{"Health"},
					Responses: openapi3.Responses{
						"200": &openapi3.ResponseRef{Value: openapi3.NewResponse().WithDescription("The relay is serving.")},
					},
				},
			},
		},
	}
}
