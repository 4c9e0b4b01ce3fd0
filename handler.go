package main

import (
	"fmt"
	"strings"

	"github.com/pulumi/pulumi-aws/sdk/v6/go/aws/iam"
	"github.com/pulumi/pulumi-aws/sdk/v6/go/aws/lambda"
	"github.com/pulumi/pulumi-command/sdk/go/command/local"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"
)

const handlerSourceDir = "./cmd/proxy"

type LambdaHandlerArgs struct {
	// CorsAllowOrigin is passed to the handler for its response headers.
	CorsAllowOrigin string
}

type LambdaHandler struct {
	function *lambda.Function
}

// NewLambdaHandler builds cmd/proxy for arm64 and declares the function that
// the proxy API integrates with. The build reruns when the handler sources
// change.
func NewLambdaHandler(ctx *pulumi.Context, buildConfig BuildConfig, args LambdaHandlerArgs) (*LambdaHandler, error) {
	lh := &LambdaHandler{}

	sourceHash, err := hashSources(handlerSourceDir)
	if err != nil {
		return nil, fmt.Errorf("Error hashing handler sources: %w", err)
	}

	build, err := local.NewCommand(ctx, name(buildConfig, "proxy-handler-build"), &local.CommandArgs{
		Dir: pulumi.String("."),
		Create: pulumi.String(strings.Join([]string{
			"rm -rf asset && mkdir asset",
			"GOOS=linux GOARCH=arm64 CGO_ENABLED=0 go build -mod=readonly -tags lambda.norpc -o ./asset/bootstrap " + handlerSourceDir,
			"chmod +x ./asset/bootstrap",
		}, " && ")),
		Triggers:   pulumi.Array{pulumi.String(sourceHash)},
		AssetPaths: pulumi.ToStringArray([]string{"asset/bootstrap"}),
	})
	if err != nil {
		return nil, fmt.Errorf("Error creating build command: %w", err)
	}

	assumeRolePolicy, err := iam.GetPolicyDocument(ctx, &iam.GetPolicyDocumentArgs{
		Statements: []iam.GetPolicyDocumentStatement{
			{
				Actions: []string{"sts:AssumeRole"},
				Principals: []iam.GetPolicyDocumentStatementPrincipal{
					{Type: "Service", Identifiers: []string{"lambda.amazonaws.com"}},
				},
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("Error creating AssumeRolePolicy: %w", err)
	}
	executionRole, err := iam.NewRole(ctx, name(buildConfig, "proxy-handler-role"), &iam.RoleArgs{
		AssumeRolePolicy: pulumi.String(assumeRolePolicy.Json),
		ManagedPolicyArns: pulumi.ToStringArray([]string{
			string(iam.ManagedPolicyAWSLambdaBasicExecutionRole),
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("Error creating execution role: %w", err)
	}

	code := pulumi.NewAssetArchive(map[string]interface{}{"bootstrap": pulumi.NewFileAsset("./asset/bootstrap")})
	lh.function, err = lambda.NewFunction(ctx, name(buildConfig, "proxy-handler"), &lambda.FunctionArgs{
		Architectures: pulumi.ToStringArray([]string{"arm64"}),
		Role:          executionRole.Arn,
		Code:          code,
		Handler:       pulumi.String("bootstrap"),
		Runtime:       pulumi.String("provided.al2023"),
		Environment: &lambda.FunctionEnvironmentArgs{
			Variables: pulumi.StringMap{
				"ENVIRONMENT":       pulumi.String(buildConfig.Environment),
				"CORS_ALLOW_ORIGIN": pulumi.String(args.CorsAllowOrigin),
			},
		},
	}, pulumi.DependsOn([]pulumi.Resource{build}))
	if err != nil {
		return nil, fmt.Errorf("Error creating lambda function: %w", err)
	}

	return lh, nil
}
