package main

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

type openAPIDoc struct {
	Paths      map[string]map[string]operation `yaml:"paths"`
	Components struct {
		Schemas map[string]schema `yaml:"schemas"`
	} `yaml:"components"`
}

type operation struct {
	Security  []map[string][]string `yaml:"security"`
	Responses map[string]any        `yaml:"responses"`
}

type schema struct {
	Type       string            `yaml:"type"`
	Ref        string            `yaml:"$ref"`
	Properties map[string]schema `yaml:"properties"`
	Required   []string          `yaml:"required"`
	Items      *schema           `yaml:"items"`
}

// route is an endpoint the adapt server registers, with the status codes
// its handlers can write.
type route struct {
	path     string
	method   string
	auth     bool
	statuses []string
}

var routes = []route{
	{"/healthz", "get", false, []string{"200"}},
	{"/api/adapt", "post", true, []string{"200", "400", "401", "404", "429", "500"}},
	{"/api/adapt/report", "get", true, []string{"200", "202", "400", "401", "403", "404", "500"}},
	{"/api/profile", "get", true, []string{"200", "401", "404"}},
	{"/api/profile", "put", true, []string{"200", "400", "401"}},
}

// schemaRule lists the wire fields a schema must declare and their types.
type schemaRule struct {
	name     string
	required []string
	props    map[string]string
}

var schemaRules = []schemaRule{
	{"ErrorResponse", []string{"error", "code"}, map[string]string{"error": "string", "code": "string", "requestId": "string"}},
	{"RejectedResponse", []string{"status", "message"}, map[string]string{"status": "string", "message": "string"}},
	{"SubmitResponse", []string{"status", "jobId", "data"}, map[string]string{"status": "string", "jobId": "string"}},
	{"SubmitData", []string{"title", "simplified_paragraphs"}, map[string]string{"title": "string", "simplified_paragraphs": "array"}},
	{"ReportResponse", []string{"status"}, map[string]string{"status": "string", "analysis": "object", "details": "string"}},
	{"Paragraph", []string{"id", "text"}, map[string]string{"id": "integer", "text": "string"}},
	{"ReadingProfile", []string{"sentence", "vocabulary"}, map[string]string{"sentence": "integer", "vocabulary": "integer", "knownTopics": "array"}},
}

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintf(os.Stderr, "usage: %s <openapi.yaml>\n", os.Args[0])
		os.Exit(2)
	}
	doc, err := loadDoc(os.Args[1])
	if err != nil {
		exitErr(err)
	}
	if err := checkDoc(doc); err != nil {
		exitErr(err)
	}
	fmt.Println("OpenAPI consistency check passed.")
}

func loadDoc(path string) (openAPIDoc, error) {
	var doc openAPIDoc
	raw, err := os.ReadFile(path)
	if err != nil {
		return doc, fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return doc, fmt.Errorf("parse %s: %w", path, err)
	}
	return doc, nil
}

// checkDoc reports every mismatch between doc and the served contract.
func checkDoc(doc openAPIDoc) error {
	var errs []error
	for _, r := range routes {
		errs = append(errs, checkRoute(doc, r)...)
	}
	for _, rule := range schemaRules {
		s, err := getSchema(doc, rule.name)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		errs = append(errs, checkSchema(rule, s)...)
	}
	return errors.Join(errs...)
}

func checkRoute(doc openAPIDoc, r route) []error {
	ops, ok := doc.Paths[r.path]
	if !ok {
		return []error{fmt.Errorf("path %s missing", r.path)}
	}
	op, ok := ops[r.method]
	if !ok {
		return []error{fmt.Errorf("%s %s missing", strings.ToUpper(r.method), r.path)}
	}
	var errs []error
	if r.auth && !hasBearer(op.Security) {
		errs = append(errs, fmt.Errorf("%s %s must require bearerAuth", strings.ToUpper(r.method), r.path))
	}
	for _, status := range r.statuses {
		if _, ok := op.Responses[status]; !ok {
			errs = append(errs, fmt.Errorf("%s %s missing %s response", strings.ToUpper(r.method), r.path, status))
		}
	}
	return errs
}

func hasBearer(security []map[string][]string) bool {
	for _, req := range security {
		if _, ok := req["bearerAuth"]; ok {
			return true
		}
	}
	return false
}

func getSchema(doc openAPIDoc, name string) (schema, error) {
	if doc.Components.Schemas == nil {
		return schema{}, errors.New("components.schemas missing")
	}
	s, ok := doc.Components.Schemas[name]
	if !ok {
		return schema{}, fmt.Errorf("schema %q missing", name)
	}
	return s, nil
}

func checkSchema(rule schemaRule, s schema) []error {
	var errs []error
	if s.Type != "object" {
		errs = append(errs, fmt.Errorf("%s must be object", rule.name))
	}
	required := makeSet(s.Required)
	for _, field := range rule.required {
		if !required[field] {
			errs = append(errs, fmt.Errorf("%s.required must include %q", rule.name, field))
		}
	}
	names := make([]string, 0, len(rule.props))
	for name := range rule.props {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		prop, ok := s.Properties[name]
		if !ok {
			errs = append(errs, fmt.Errorf("%s.%s missing", rule.name, name))
			continue
		}
		if want := rule.props[name]; prop.Type != want {
			errs = append(errs, fmt.Errorf("%s.%s must be %s, got %q", rule.name, name, want, prop.Type))
		}
	}
	return errs
}

func makeSet(items []string) map[string]bool {
	out := make(map[string]bool, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out[item] = true
	}
	return out
}

func exitErr(err error) {
	fmt.Fprintln(os.Stderr, err.Error())
	os.Exit(1)
}
