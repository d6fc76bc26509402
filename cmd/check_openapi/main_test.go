package main

import (
	"strings"
	"testing"
)

func TestRepositoryDocumentPasses(t *testing.T) {
	doc, err := loadDoc("../../api/openapi.yaml")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := checkDoc(doc); err != nil {
		t.Fatalf("check failed:\n%v", err)
	}
}

func TestCheckDocReportsMismatches(t *testing.T) {
	doc, err := loadDoc("../../api/openapi.yaml")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	delete(doc.Paths["/api/adapt/report"]["get"].Responses, "202")
	errSchema := doc.Components.Schemas["ErrorResponse"]
	errSchema.Required = []string{"error"}
	doc.Components.Schemas["ErrorResponse"] = errSchema
	delete(doc.Components.Schemas, "RejectedResponse")

	err = checkDoc(doc)
	if err == nil {
		t.Fatalf("expected mismatches")
	}
	for _, want := range []string{
		"GET /api/adapt/report missing 202 response",
		`ErrorResponse.required must include "code"`,
		`schema "RejectedResponse" missing`,
	} {
		if !strings.Contains(err.Error(), want) {
			t.Fatalf("missing %q in:\n%v", want, err)
		}
	}
}

func TestCheckRouteRequiresBearer(t *testing.T) {
	doc := openAPIDoc{Paths: map[string]map[string]operation{
		"/api/profile": {"get": {Responses: map[string]any{"200": nil, "401": nil, "404": nil}}},
	}}
	errs := checkRoute(doc, route{"/api/profile", "get", true, []string{"200", "401", "404"}})
	if len(errs) != 1 || !strings.Contains(errs[0].Error(), "bearerAuth") {
		t.Fatalf("expected bearer error, got %v", errs)
	}
}
