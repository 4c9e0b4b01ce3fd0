package main

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/pulumi/pulumi/sdk/v3/go/common/resource"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"
)

const (
	testRegion  = "us-east-1"
	testAccount = "123456789012"
)

type capturedResource struct {
	Type   string
	Name   string
	Inputs resource.PropertyMap
}

type capturedCall struct {
	Token string
	Args  resource.PropertyMap
}

// testMocks records every registered resource and invoke, and fills in the
// provider computed outputs the proxy API reads.
type testMocks struct {
	mu        sync.Mutex
	resources []capturedResource
	calls     []capturedCall
	declared  declarationOrder
}

func (m *testMocks) NewResource(args pulumi.MockResourceArgs) (string, resource.PropertyMap, error) {
	m.mu.Lock()
	m.resources = append(m.resources, capturedResource{Type: args.TypeToken, Name: args.Name, Inputs: args.Inputs})
	m.mu.Unlock()

	id := args.Name + "_id"
	out := args.Inputs.Copy()
	switch args.TypeToken {
	case "aws:apigateway/restApi:RestApi":
		out["executionArn"] = resource.NewStringProperty(fmt.Sprintf("arn:aws:execute-api:%s:%s:%s", testRegion, testAccount, id))
		out["rootResourceId"] = resource.NewStringProperty(id + "_root")
	case "aws:apigateway/resource:Resource":
		out["path"] = resource.NewStringProperty("/" + args.Inputs["pathPart"].StringValue())
	case "aws:lambda/function:Function":
		out["name"] = resource.NewStringProperty(args.Name)
		out["arn"] = resource.NewStringProperty(fmt.Sprintf("arn:aws:lambda:%s:%s:function:%s", testRegion, testAccount, args.Name))
		out["invokeArn"] = resource.NewStringProperty(fmt.Sprintf("arn:aws:apigateway:%s:lambda:path/2015-03-31/functions/%s/invocations", testRegion, args.Name))
	case "aws:cloudwatch/logGroup:LogGroup":
		out["arn"] = resource.NewStringProperty(fmt.Sprintf("arn:aws:logs:%s:%s:log-group:%s", testRegion, testAccount, id))
	case "aws:iam/role:Role":
		out["arn"] = resource.NewStringProperty(fmt.Sprintf("arn:aws:iam::%s:role/%s", testAccount, id))
	}
	return id, out, nil
}

func (m *testMocks) Call(args pulumi.MockCallArgs) (resource.PropertyMap, error) {
	m.mu.Lock()
	m.calls = append(m.calls, capturedCall{Token: args.Token, Args: args.Args})
	m.mu.Unlock()

	switch {
	case strings.Contains(args.Token, "getRegion"):
		return resource.PropertyMap{"name": resource.NewStringProperty(testRegion)}, nil
	case strings.Contains(args.Token, "getPartition"):
		return resource.PropertyMap{
			"partition": resource.NewStringProperty("aws"),
			"dnsSuffix": resource.NewStringProperty("amazonaws.com"),
		}, nil
	case strings.Contains(args.Token, "getPolicyDocument"):
		doc, err := json.Marshal(args.Args.Mappable())
		if err != nil {
			return nil, err
		}
		return resource.PropertyMap{"json": resource.NewStringProperty(string(doc))}, nil
	}
	return resource.PropertyMap{}, nil
}

func (m *testMocks) byType(typeToken string) []capturedResource {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []capturedResource
	for _, r := range m.resources {
		if r.Type == typeToken {
			out = append(out, r)
		}
	}
	return out
}

func (m *testMocks) callsTo(token string) []capturedCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []capturedCall
	for _, c := range m.calls {
		if strings.Contains(c.Token, token) {
			out = append(out, c)
		}
	}
	return out
}

// declarationOrder records resources in the order the program declares
// them. Stack transformations run synchronously at declaration, unlike mock
// registration which follows input resolution.
type declarationOrder struct {
	mu    sync.Mutex
	names []string
}

func (d *declarationOrder) register(ctx *pulumi.Context) error {
	return ctx.RegisterStackTransformation(func(args *pulumi.ResourceTransformationArgs) *pulumi.ResourceTransformationResult {
		d.mu.Lock()
		d.names = append(d.names, args.Type+"::"+args.Name)
		d.mu.Unlock()
		return nil
	})
}

func (d *declarationOrder) list() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.names...)
}

func (d *declarationOrder) index(key string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, n := range d.names {
		if n == key {
			return i
		}
	}
	return -1
}

// tree returns the captured resources in a stable order for comparison.
func (m *testMocks) tree() []map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]map[string]interface{}, 0, len(m.resources))
	for _, r := range m.resources {
		out = append(out, map[string]interface{}{
			"type":   r.Type,
			"name":   r.Name,
			"inputs": r.Inputs.Mappable(),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		ki := out[i]["type"].(string) + "::" + out[i]["name"].(string)
		kj := out[j]["type"].(string) + "::" + out[j]["name"].(string)
		return ki < kj
	})
	return out
}
