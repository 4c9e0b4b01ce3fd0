package main

import (
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws/arn"
	"github.com/pulumi/pulumi-aws/sdk/v6/go/aws"
	"github.com/pulumi/pulumi-aws/sdk/v6/go/aws/apigateway"
	"github.com/pulumi/pulumi-aws/sdk/v6/go/aws/cloudwatch"
	"github.com/pulumi/pulumi-aws/sdk/v6/go/aws/iam"
	"github.com/pulumi/pulumi-aws/sdk/v6/go/aws/lambda"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"
)

const (
	lambdaProxyAPIType = "proxyapi:index:LambdaProxyAPI"
	stageName          = "prod"
	invokeAction       = "execute-api:Invoke"
	logRetentionDays   = 30
)

type LambdaProxyAPIArgs struct {
	ApiNameKey      string
	ApiResourceName string
	ProxyFunction   *lambda.Function
	// ApiCallerRoleArn names the externally managed role that is granted
	// invoke on the method. The role itself is never created here.
	ApiCallerRoleArn string
	MethodType       string
	// ApiEndpointReaderAccountID is accepted for compatibility and not used.
	ApiEndpointReaderAccountID string
	// CorsAllowOrigin, when set, adds CORS headers to the gateway's default
	// 4XX and 5XX responses.
	CorsAllowOrigin string
	// CloudWatchRole sets the account-wide role API Gateway uses to write
	// access logs. Only one stack per account and region should enable it.
	CloudWatchRole bool
}

// CallerRole is a reference to an imported IAM role.
type CallerRole struct {
	Arn  string
	Name string
}

type LambdaProxyAPI struct {
	pulumi.ResourceState

	LogGroup   *cloudwatch.LogGroup
	Api        *apigateway.RestApi
	Stage      *apigateway.Stage
	CallerRole CallerRole

	Method    *apigateway.Method
	MethodArn pulumi.StringOutput

	EndpointURL        pulumi.StringOutput
	EndpointExportName string
}

// lambdaIntegration describes how a method is wired to its handler before
// the method exists.
type lambdaIntegration struct {
	handler *lambda.Function
}

func newLambdaIntegration(handler *lambda.Function) lambdaIntegration {
	return lambdaIntegration{handler: handler}
}

// NewLambdaProxyAPI declares a REST API that routes one IAM-authorized method
// to the proxy function and grants the caller role invoke on exactly that
// method.
func NewLambdaProxyAPI(ctx *pulumi.Context, buildConfig BuildConfig, args LambdaProxyAPIArgs, opts ...pulumi.ResourceOption) (*LambdaProxyAPI, error) {
	if err := validateLambdaProxyAPIArgs(buildConfig, args); err != nil {
		return nil, err
	}
	callerRole, err := importRole(args.ApiCallerRoleArn)
	if err != nil {
		return nil, err
	}

	a := &LambdaProxyAPI{}
	apiName := name(buildConfig, args.ApiNameKey)
	if err := ctx.RegisterComponentResource(lambdaProxyAPIType, apiName, a, opts...); err != nil {
		return nil, fmt.Errorf("Error registering proxy api: %w", err)
	}
	childOpts := append(append([]pulumi.ResourceOption{}, opts...), pulumi.Parent(a))
	resourceName := func(suffix string) string {
		return name(buildConfig, args.ApiNameKey+"-"+suffix)
	}

	if args.ApiEndpointReaderAccountID != "" {
		_ = ctx.Log.Debug("apiEndpointReaderAccountId is set but not used", &pulumi.LogArgs{Resource: a})
	}

	a.LogGroup, err = cloudwatch.NewLogGroup(ctx, resourceName("logGroup"), &cloudwatch.LogGroupArgs{
		RetentionInDays: pulumi.IntPtr(logRetentionDays),
	}, childOpts...)
	if err != nil {
		return nil, fmt.Errorf("Error creating log group: %w", err)
	}

	a.Api, err = apigateway.NewRestApi(ctx, apiName, &apigateway.RestApiArgs{
		Name: pulumi.String(apiName),
	}, childOpts...)
	if err != nil {
		return nil, fmt.Errorf("Error creating rest api: %w", err)
	}

	a.EndpointURL, err = endpointURL(ctx, a.Api)
	if err != nil {
		return nil, err
	}
	a.EndpointExportName = resourceName("endpointURL")
	ctx.Export(a.EndpointExportName, a.EndpointURL)

	resource, err := apigateway.NewResource(ctx, resourceName(args.ApiResourceName), &apigateway.ResourceArgs{
		RestApi:  a.Api.ID(),
		ParentId: a.Api.RootResourceId,
		PathPart: pulumi.String(args.ApiResourceName),
	}, childOpts...)
	if err != nil {
		return nil, fmt.Errorf("Error creating api resource: %w", err)
	}

	a.CallerRole = callerRole
	integration := newLambdaIntegration(args.ProxyFunction)

	httpMethod := strings.ToUpper(args.MethodType)
	var boundIntegration *apigateway.Integration
	a.Method, boundIntegration, err = a.addMethod(ctx, resource, httpMethod, integration, resourceName(args.ApiResourceName+"-"+httpMethod), childOpts)
	if err != nil {
		return nil, err
	}

	a.MethodArn = pulumi.Sprintf("%s/%s/%s%s", a.Api.ExecutionArn, stageName, a.Method.HttpMethod, resource.Path)
	if err := a.grantInvoke(ctx, resourceName("importedPermissionSetRole"), childOpts); err != nil {
		return nil, err
	}

	if err := a.deploy(ctx, resourceName, args, resource, boundIntegration, childOpts); err != nil {
		return nil, err
	}

	_ = ctx.Log.Info(fmt.Sprintf("declared %s %s on %s for caller role %s", httpMethod, args.ApiResourceName, apiName, callerRole.Name), &pulumi.LogArgs{Resource: a})

	if err := ctx.RegisterResourceOutputs(a, pulumi.Map{
		"logGroupArn": a.LogGroup.Arn,
		"restApiId":   a.Api.ID(),
		"methodArn":   a.MethodArn,
		"endpointUrl": a.EndpointURL,
	}); err != nil {
		return nil, fmt.Errorf("Error registering proxy api outputs: %w", err)
	}
	return a, nil
}

func validateLambdaProxyAPIArgs(buildConfig BuildConfig, args LambdaProxyAPIArgs) error {
	switch {
	case buildConfig.Environment == "":
		return fmt.Errorf("environment is required")
	case args.ApiNameKey == "":
		return fmt.Errorf("apiNameKey is required")
	case args.ApiResourceName == "":
		return fmt.Errorf("apiResourceName is required")
	case args.MethodType == "":
		return fmt.Errorf("methodType is required")
	case strings.EqualFold(args.MethodType, "ANY"):
		// An ANY method has no single verb to scope the invoke grant to.
		return fmt.Errorf("methodType ANY is not supported, use a concrete verb")
	case args.ProxyFunction == nil:
		return fmt.Errorf("proxy function is required")
	}
	return nil
}

// importRole resolves a role reference from its ARN. Only the shape needed to
// attach a policy is checked; whether the role exists is left to the engine.
func importRole(roleArn string) (CallerRole, error) {
	parsed, err := arn.Parse(roleArn)
	if err != nil {
		return CallerRole{}, fmt.Errorf("Error importing caller role %q: %w", roleArn, err)
	}
	if !strings.HasPrefix(parsed.Resource, "role/") {
		return CallerRole{}, fmt.Errorf("Error importing caller role %q: not a role arn", roleArn)
	}
	roleName := parsed.Resource[strings.LastIndex(parsed.Resource, "/")+1:]
	if roleName == "" {
		return CallerRole{}, fmt.Errorf("Error importing caller role %q: empty role name", roleArn)
	}
	return CallerRole{Arn: roleArn, Name: roleName}, nil
}

func endpointURL(ctx *pulumi.Context, api *apigateway.RestApi) (pulumi.StringOutput, error) {
	region, err := aws.GetRegion(ctx, nil)
	if err != nil {
		return pulumi.StringOutput{}, fmt.Errorf("Error getting region: %w", err)
	}
	partition, err := aws.GetPartition(ctx, nil)
	if err != nil {
		return pulumi.StringOutput{}, fmt.Errorf("Error getting partition: %w", err)
	}
	return pulumi.Sprintf("https://%s.execute-api.%s.%s/%s/", api.ID(), region.Name, partition.DnsSuffix, stageName), nil
}

// addMethod declares the method with IAM authorization and binds the
// integration to it.
func (a *LambdaProxyAPI) addMethod(ctx *pulumi.Context, resource *apigateway.Resource, httpMethod string, integration lambdaIntegration, methodName string, opts []pulumi.ResourceOption) (*apigateway.Method, *apigateway.Integration, error) {
	method, err := apigateway.NewMethod(ctx, methodName, &apigateway.MethodArgs{
		RestApi:       a.Api.ID(),
		ResourceId:    resource.ID(),
		HttpMethod:    pulumi.String(httpMethod),
		Authorization: pulumi.String("AWS_IAM"),
	}, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("Error creating method: %w", err)
	}

	bound, err := apigateway.NewIntegration(ctx, methodName+"-integration", &apigateway.IntegrationArgs{
		RestApi:               a.Api.ID(),
		ResourceId:            resource.ID(),
		HttpMethod:            method.HttpMethod,
		IntegrationHttpMethod: pulumi.String("POST"),
		Type:                  pulumi.String("AWS_PROXY"),
		Uri:                   integration.handler.InvokeArn,
	}, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("Error creating integration: %w", err)
	}

	_, err = lambda.NewPermission(ctx, methodName+"-permission", &lambda.PermissionArgs{
		Action:    pulumi.String("lambda:InvokeFunction"),
		Function:  integration.handler.Name,
		Principal: pulumi.String("apigateway.amazonaws.com"),
		SourceArn: pulumi.Sprintf("%s/*/%s%s", a.Api.ExecutionArn, method.HttpMethod, resource.Path),
	}, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("Error creating lambda permission: %w", err)
	}

	return method, bound, nil
}

// grantInvoke attaches an inline policy to the caller role allowing invoke on
// a.MethodArn only.
func (a *LambdaProxyAPI) grantInvoke(ctx *pulumi.Context, policyName string, opts []pulumi.ResourceOption) error {
	scope := a.MethodArn.ApplyT(concreteMethodArn).(pulumi.StringOutput)
	policy := iam.GetPolicyDocumentOutput(ctx, iam.GetPolicyDocumentOutputArgs{
		Statements: iam.GetPolicyDocumentStatementArray{
			iam.GetPolicyDocumentStatementArgs{
				Effect:    pulumi.StringPtr("Allow"),
				Actions:   pulumi.StringArray{pulumi.String(invokeAction)},
				Resources: pulumi.StringArray{scope},
			},
		},
	})
	_, err := iam.NewRolePolicy(ctx, policyName, &iam.RolePolicyArgs{
		Role:   pulumi.String(a.CallerRole.Name),
		Policy: policy.Json(),
	}, opts...)
	if err != nil {
		return fmt.Errorf("Error creating caller policy: %w", err)
	}
	return nil
}

// concreteMethodArn rejects an empty or wildcard scope for the invoke grant.
func concreteMethodArn(methodArn string) (string, error) {
	if methodArn == "" || strings.Contains(methodArn, "*") {
		return "", fmt.Errorf("invoke policy needs a concrete method arn, got %q", methodArn)
	}
	return methodArn, nil
}

// deploy publishes the API to the prod stage with access logging.
func (a *LambdaProxyAPI) deploy(ctx *pulumi.Context, resourceName func(string) string, args LambdaProxyAPIArgs, resource *apigateway.Resource, integration *apigateway.Integration, opts []pulumi.ResourceOption) error {
	deps := []pulumi.Resource{a.Method, integration}

	if args.CorsAllowOrigin != "" {
		for _, responseType := range []string{"DEFAULT_4XX", "DEFAULT_5XX"} {
			resp, err := apigateway.NewResponse(ctx, resourceName(strings.ToLower(responseType)), &apigateway.ResponseArgs{
				RestApiId:    a.Api.ID(),
				ResponseType: pulumi.String(responseType),
				ResponseParameters: pulumi.StringMap{
					"gatewayresponse.header.Access-Control-Allow-Origin":  pulumi.Sprintf("'%s'", args.CorsAllowOrigin),
					"gatewayresponse.header.Access-Control-Allow-Headers": pulumi.String("'*'"),
				},
			}, opts...)
			if err != nil {
				return fmt.Errorf("Error creating gateway response: %w", err)
			}
			deps = append(deps, resp)
		}
	}

	deployment, err := apigateway.NewDeployment(ctx, resourceName("deployment"), &apigateway.DeploymentArgs{
		RestApi: a.Api.ID(),
		Triggers: pulumi.StringMap{
			"redeployment": pulumi.Sprintf("%s/%s/%s", resource.ID(), a.Method.ID(), integration.ID()),
		},
	}, withDependsOn(opts, deps)...)
	if err != nil {
		return fmt.Errorf("Error creating deployment: %w", err)
	}

	stageDeps := []pulumi.Resource{a.LogGroup}
	if args.CloudWatchRole {
		account, err := newCloudWatchAccount(ctx, resourceName, opts)
		if err != nil {
			return err
		}
		stageDeps = append(stageDeps, account)
	}

	a.Stage, err = apigateway.NewStage(ctx, resourceName("stage"), &apigateway.StageArgs{
		RestApi:    a.Api.ID(),
		Deployment: deployment.ID(),
		StageName:  pulumi.String(stageName),
		AccessLogSettings: &apigateway.StageAccessLogSettingsArgs{
			DestinationArn: a.LogGroup.Arn,
			Format:         pulumi.String(jsonWithStandardFields),
		},
	}, withDependsOn(opts, stageDeps)...)
	if err != nil {
		return fmt.Errorf("Error creating stage: %w", err)
	}
	return nil
}

func withDependsOn(opts []pulumi.ResourceOption, deps []pulumi.Resource) []pulumi.ResourceOption {
	return append(opts[:len(opts):len(opts)], pulumi.DependsOn(deps))
}

func newCloudWatchAccount(ctx *pulumi.Context, resourceName func(string) string, opts []pulumi.ResourceOption) (*apigateway.Account, error) {
	assumeRolePolicy, err := iam.GetPolicyDocument(ctx, &iam.GetPolicyDocumentArgs{
		Statements: []iam.GetPolicyDocumentStatement{
			{
				Actions: []string{"sts:AssumeRole"},
				Principals: []iam.GetPolicyDocumentStatementPrincipal{
					{Type: "Service", Identifiers: []string{"apigateway.amazonaws.com"}},
				},
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("Error creating cloudwatch AssumeRolePolicy: %w", err)
	}
	role, err := iam.NewRole(ctx, resourceName("cloudWatchRole"), &iam.RoleArgs{
		AssumeRolePolicy: pulumi.String(assumeRolePolicy.Json),
		ManagedPolicyArns: pulumi.ToStringArray([]string{
			"arn:aws:iam::aws:policy/service-role/AmazonAPIGatewayPushToCloudWatchLogs",
		}),
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("Error creating cloudwatch role: %w", err)
	}
	account, err := apigateway.NewAccount(ctx, resourceName("account"), &apigateway.AccountArgs{
		CloudwatchRoleArn: role.Arn,
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("Error creating api gateway account: %w", err)
	}
	return account, nil
}
