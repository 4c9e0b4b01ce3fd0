package main

import (
	"testing"

	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLambdaHandler(t *testing.T) {
	t.Parallel()
	mocks := &testMocks{}
	err := pulumi.RunErr(func(ctx *pulumi.Context) error {
		_, err := NewLambdaHandler(ctx, BuildConfig{Environment: "prod"}, LambdaHandlerArgs{CorsAllowOrigin: "*"})
		return err
	}, pulumi.WithMocks("project", "stack", mocks))
	require.NoError(t, err)

	wantHash, err := hashSources(handlerSourceDir)
	require.NoError(t, err)

	builds := mocks.byType("command:local:Command")
	require.Len(t, builds, 1)
	assert.Equal(t, "prod-proxy-handler-build", builds[0].Name)
	triggers := builds[0].Inputs["triggers"].ArrayValue()
	require.Len(t, triggers, 1)
	assert.Equal(t, wantHash, triggers[0].StringValue())

	functions := mocks.byType("aws:lambda/function:Function")
	require.Len(t, functions, 1)
	assert.Equal(t, "prod-proxy-handler", functions[0].Name)
	assert.Equal(t, "provided.al2023", functions[0].Inputs["runtime"].StringValue())
	assert.Equal(t, "arn:aws:iam::123456789012:role/prod-proxy-handler-role_id", functions[0].Inputs["role"].StringValue())
	vars := functions[0].Inputs["environment"].ObjectValue()["variables"].ObjectValue()
	assert.Equal(t, "prod", vars["ENVIRONMENT"].StringValue())
	assert.Equal(t, "*", vars["CORS_ALLOW_ORIGIN"].StringValue())
}
